package media

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultThreshold = 0.04
	DefaultHold      = 250 * time.Millisecond
)

// RMS is the root mean square of unsigned 8-bit PCM samples centred at 128,
// normalised to [0, 1].
func RMS(samples []byte) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, b := range samples {
		v := (float64(b) - 128) / 128
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Detector turns audio frames into a speaking flag. A frame louder than
// Threshold marks the speaker active; the flag stays set until Hold has
// passed without another loud frame.
type Detector struct {
	Threshold float64
	Hold      time.Duration

	now func() time.Time

	mu       sync.Mutex
	lastLoud time.Time
	speaking bool
}

func NewDetector() *Detector {
	return &Detector{Threshold: DefaultThreshold, Hold: DefaultHold, now: time.Now}
}

// Feed analyses one frame and returns the resulting speaking state.
func (d *Detector) Feed(samples []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	if RMS(samples) > d.Threshold {
		d.lastLoud = now
		d.speaking = true
		return true
	}
	if d.speaking && now.Sub(d.lastLoud) >= d.Hold {
		d.speaking = false
	}
	return d.speaking
}

func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func (d *Detector) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}

// Run feeds frames until ctx ends or frames closes, calling report whenever
// the speaking state changes. ws.Session.ReportSpeaking fits report.
func (d *Detector) Run(ctx context.Context, frames <-chan []byte, report func(bool) error, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	last := d.Speaking()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			cur := d.Feed(f)
			if cur == last {
				continue
			}
			last = cur
			if err := report(cur); err != nil {
				log.Debug("speaking report failed", zap.Bool("speaking", cur), zap.Error(err))
			}
		}
	}
}
