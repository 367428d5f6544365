package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

const ServiceType = "_meetboard._tcp"

// Relay is a meeting relay found on the local network.
type Relay struct {
	Instance string
	Host     string
	Addr     net.IP
	Port     int
	Info     []string
}

// WSURL is the relay's websocket endpoint.
func (r Relay) WSURL() string {
	return "ws://" + net.JoinHostPort(r.Addr.String(), strconv.Itoa(r.Port)) + "/ws"
}

// Advertiser announces the relay until Shutdown.
type Advertiser struct {
	server *mdns.Server
	log    *zap.Logger
}

// Advertise announces a relay listening on port. An empty instance uses the
// hostname.
func Advertise(instance string, port int, log *zap.Logger) (*Advertiser, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: hostname: %w", err)
		}
		instance = host
	}

	svc, err := service(instance, "", port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mdns server: %w", err)
	}

	log.Named("mdns").Info("advertising relay",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertiser{server: server, log: log.Named("mdns")}, nil
}

func (a *Advertiser) Shutdown() error {
	a.log.Info("stop advertising")
	return a.server.Shutdown()
}

// service builds the mDNS records. An empty host and nil ips are resolved
// from the OS.
func service(instance, host string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", port)
	}
	svc, err := mdns.NewMDNSService(instance, ServiceType, "", host, port, ips, []string{"meetboard", "path=/ws"})
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns service: %w", err)
	}
	return svc, nil
}

// Browse collects relays answering within timeout, or until ctx's deadline
// if that comes first.
func Browse(ctx context.Context, timeout time.Duration) ([]Relay, error) {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, errors.New("discovery: no time left to browse")
	}

	entries := make(chan *mdns.ServiceEntry, 16)

	var (
		mu     sync.Mutex
		relays []Relay
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]bool)
		for e := range entries {
			r, ok := fromEntry(e)
			if !ok || seen[r.WSURL()] {
				continue
			}
			seen[r.WSURL()] = true
			mu.Lock()
			relays = append(relays, r)
			mu.Unlock()
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	wg.Wait()

	if err != nil {
		return nil, fmt.Errorf("discovery: query: %w", err)
	}
	return relays, nil
}

func fromEntry(e *mdns.ServiceEntry) (Relay, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Relay{}, false
	}
	return Relay{
		Instance: e.Name,
		Host:     e.Host,
		Addr:     e.AddrV4,
		Port:     e.Port,
		Info:     e.InfoFields,
	}, true
}
