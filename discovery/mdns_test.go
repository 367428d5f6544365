package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayWSURL(t *testing.T) {
	r := Relay{Addr: net.IPv4(192, 168, 1, 20), Port: 8080}
	assert.Equal(t, "ws://192.168.1.20:8080/ws", r.WSURL())
}

func TestFromEntry(t *testing.T) {
	_, ok := fromEntry(nil)
	assert.False(t, ok)

	_, ok = fromEntry(&mdns.ServiceEntry{Port: 8080})
	assert.False(t, ok, "no address")

	_, ok = fromEntry(&mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1)})
	assert.False(t, ok, "no port")

	r, ok := fromEntry(&mdns.ServiceEntry{
		Name:       "room-relay._meetboard._tcp.local.",
		Host:       "relay.local.",
		AddrV4:     net.IPv4(10, 0, 0, 1),
		Port:       9000,
		InfoFields: []string{"meetboard"},
	})
	require.True(t, ok)
	assert.Equal(t, "ws://10.0.0.1:9000/ws", r.WSURL())
	assert.Equal(t, []string{"meetboard"}, r.Info)
}

func TestServiceRecords(t *testing.T) {
	svc, err := service("relay", "relay.local.", 8080, []net.IP{net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, ServiceType, svc.Service)
	assert.Equal(t, 8080, svc.Port)
	assert.Contains(t, svc.TXT, "path=/ws")
}

func TestServiceRejectsBadPort(t *testing.T) {
	_, err := service("relay", "relay.local.", 0, nil)
	assert.Error(t, err)
	_, err = service("relay", "relay.local.", 70000, nil)
	assert.Error(t, err)
}

func TestBrowseNeedsTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := Browse(ctx, time.Second)
	assert.Error(t, err)
}
