package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/api"
	"github.com/Tk21111/meeting_board/discovery"
	"github.com/Tk21111/meeting_board/export"
	"github.com/Tk21111/meeting_board/internal/logx"
	"github.com/Tk21111/meeting_board/media"
	"github.com/Tk21111/meeting_board/room"
	"github.com/Tk21111/meeting_board/surface"
	"github.com/Tk21111/meeting_board/transport"
	"github.com/Tk21111/meeting_board/ws"
)

// capture keeps the relay session so the bot can publish speaking state.
type capture struct {
	*ws.Dialer

	mu      sync.Mutex
	session *ws.Session
}

func (c *capture) Connect(ctx context.Context, url, token string) (transport.Session, error) {
	s, err := c.Dialer.Connect(ctx, url, token)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = s.(*ws.Session)
	c.mu.Unlock()
	return s, nil
}

func (c *capture) current() *ws.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// speech produces 8-bit PCM frames: bursts of tone separated by silence.
func speech(ctx context.Context) <-chan []byte {
	frames := make(chan []byte)
	go func() {
		defer close(frames)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			amp := byte(0)
			if (i/50)%2 == 0 {
				amp = byte(20 + rand.Intn(40))
			}
			f := make([]byte, 320)
			for j := range f {
				if j%2 == 0 {
					f[j] = 128 + amp
				} else {
					f[j] = 128 - amp
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case frames <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return frames
}

func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080", "relay http base url")
		course   = flag.String("course", "test", "course id")
		topic    = flag.String("topic", "test", "topic id")
		identity = flag.String("id", "bot", "X-User-Id sent for the token")
		rate     = flag.Int("rate", 20, "strokes per second")
		duration = flag.Int("duration", 10, "seconds")
		points   = flag.Int("points", 12, "points per stroke")
		pdfPath  = flag.String("pdf", "", "write the final board to this pdf")
		discover = flag.Bool("discover", false, "find the relay with mdns instead of -api")
	)
	flag.Parse()
	if *points < 2 {
		*points = 2
	}

	log, err := logx.Init("dev")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*duration)*time.Second+5*time.Second)
	defer cancel()

	if *discover {
		relays, err := discovery.Browse(ctx, 3*time.Second)
		if err != nil || len(relays) == 0 {
			log.Fatal("no relay found on the lan", zap.Error(err))
		}
		*apiURL = "http" + strings.TrimSuffix(strings.TrimPrefix(relays[0].WSURL(), "ws"), "/ws")
		log.Info("found relay", zap.String("instance", relays[0].Instance), zap.String("api", *apiURL))
	}

	tokens := &api.TokenClient{
		BaseURL: *apiURL,
		Header:  http.Header{"X-User-Id": {*identity}, "X-User-Name": {"Load bot " + *identity}},
	}
	conn := &capture{Dialer: &ws.Dialer{Log: log}}
	board := surface.New(1920, 1080)

	ctrl := room.New(room.DefaultOptions(*topic, *course), tokens, conn, board, log)
	if err := ctrl.Join(ctx); err != nil {
		log.Fatal("join", zap.Error(err))
	}
	defer ctrl.Leave(context.Background())

	log.Info("connected", zap.String("room", ctrl.RoomName()), zap.String("identity", ctrl.Identity()))

	if s := conn.current(); s != nil {
		go media.NewDetector().Run(ctx, speech(ctx), s.ReportSpeaking, log)
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	end := time.After(time.Duration(*duration) * time.Second)

	sent := 0
	for {
		select {
		case <-end:
			log.Info("bombardment finished", zap.Int("strokes", sent), zap.Int("peers", len(ctrl.Presence().Roster())-1))
			if *pdfPath != "" {
				writePDF(log, *pdfPath, board, ctrl.RoomName())
			}
			return

		case <-ticker.C:
			d := ws.RandomStroke(1920, 1080, *points)
			if !ctrl.BeginStroke(d.Path[0].X, d.Path[0].Y, d.Tool, d.Path[0].Color, d.Path[0].StrokeWidth) {
				continue
			}
			for _, p := range d.Path[1:] {
				ctrl.ExtendStroke(p.X, p.Y)
			}
			if _, ok := ctrl.EndStroke(ctx); ok {
				sent++
			}
		}
	}
}

func writePDF(log *zap.Logger, path string, board *surface.Surface, title string) {
	f, err := os.Create(path)
	if err != nil {
		log.Error("create pdf", zap.Error(err))
		return
	}
	defer f.Close()

	if err := export.WritePDF(f, board.Snapshot(), title); err != nil {
		log.Error("write pdf", zap.Error(err))
		return
	}
	log.Info("board exported", zap.String("path", path))
}
