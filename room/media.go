package room

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/transport"
)

func (c *Controller) VideoEnabled() bool {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	return c.videoOn
}

func (c *Controller) AudioEnabled() bool {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	return c.audioOn
}

// Warnings lists device problems reported since the last join.
func (c *Controller) Warnings() []string {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	return append([]string(nil), c.warnings...)
}

// ToggleCamera flips the camera. The displayed state only changes once the
// transport confirms.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	return c.setCamera(ctx, !c.VideoEnabled())
}

func (c *Controller) ToggleMicrophone(ctx context.Context) error {
	return c.setMicrophone(ctx, !c.AudioEnabled())
}

func (c *Controller) setCamera(ctx context.Context, on bool) error {
	return c.setDevice(ctx, "camera", on, func(s transport.Session) error {
		return s.SetCameraEnabled(ctx, on)
	}, func() { c.videoOn = on })
}

func (c *Controller) setMicrophone(ctx context.Context, on bool) error {
	return c.setDevice(ctx, "microphone", on, func(s transport.Session) error {
		return s.SetMicrophoneEnabled(ctx, on)
	}, func() { c.audioOn = on })
}

func (c *Controller) setDevice(ctx context.Context, device string, on bool, apply func(transport.Session) error, commit func()) error {
	s, local, err := c.joinedSession()
	if err != nil {
		return err
	}

	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	if err := apply(s); err != nil {
		if !errors.Is(err, transport.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", transport.ErrDeviceUnavailable, err)
		}
		c.warnings = append(c.warnings, fmt.Sprintf("%s: %v", device, err))
		c.log.Warn("device toggle failed", zap.String("device", device), zap.Bool("enable", on), zap.Error(err))
		return fmt.Errorf("room: %s: %w", device, err)
	}

	commit()
	c.presence.SetLocalMedia(local.Identity, c.videoOn, c.audioOn)
	return nil
}

func (c *Controller) resetDevices() {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	c.videoOn = false
	c.audioOn = false
	c.warnings = nil
}
