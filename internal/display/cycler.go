package display

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jamesprial/srt-streamer-agent/internal/status"
)

// Source provides the latest snapshot. *hub.Hub satisfies it.
type Source interface {
	Current() *status.Snapshot
}

// Renderer draws one frame.
type Renderer interface {
	Render(f Frame) error
}

// Cycler rotates through a variant's modes. It is not safe for concurrent
// use; Run owns it.
type Cycler struct {
	src      Source
	variant  Variant
	renderer Renderer
	switchIv time.Duration
	refresh  time.Duration
	logger   *slog.Logger

	mode      int
	enteredAt time.Time
}

// NewCycler returns a Cycler starting at the variant's first mode.
func NewCycler(src Source, variant Variant, renderer Renderer, switchInterval, refresh time.Duration, logger *slog.Logger) (*Cycler, error) {
	if len(variant.Modes) == 0 {
		return nil, errors.New("display: variant has no modes")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cycler{
		src:      src,
		variant:  variant,
		renderer: renderer,
		switchIv: switchInterval,
		refresh:  refresh,
		logger:   logger,
	}, nil
}

// Mode returns the index of the current mode.
func (c *Cycler) Mode() int { return c.mode }

// Step renders the current mode and advances to the next one once the mode
// has been shown for longer than the switch interval.
func (c *Cycler) Step(now time.Time) error {
	if c.enteredAt.IsZero() {
		c.enteredAt = now
	}
	m := c.variant.Modes[c.mode]
	err := c.renderer.Render(m.Render(c.src.Current()))

	if now.Sub(c.enteredAt) > c.switchIv {
		c.mode = (c.mode + 1) % len(c.variant.Modes)
		c.enteredAt = now
	}
	return err
}

// Run calls Step every refresh interval until ctx is done. Render errors
// are logged and the loop continues.
func (c *Cycler) Run(ctx context.Context) {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		if err := c.Step(time.Now()); err != nil {
			c.logger.Warn("render failed", "mode", c.variant.Modes[c.mode].Name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
