// Package dutycycle sleeps for long intervals using a primitive that only
// accepts short, bounded sleeps.
package dutycycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wunderabt/power-meter/internal/logging"
)

// UnitMillis is the longest sleep the primitive accepts in one call.
const UnitMillis = 8000

var ErrUnitTooLong = errors.New("dutycycle: sleep unit exceeds 8000 ms")

// Sleeper is the bounded low-power sleep primitive.
type Sleeper interface {
	SleepBounded(ctx context.Context, ms int) error
}

type Controller struct {
	sleeper Sleeper
	logger  *slog.Logger
}

func NewController(s Sleeper, logger *slog.Logger) *Controller {
	return &Controller{sleeper: s, logger: logging.OrDefault(logger)}
}

// Sleep blocks for totalSeconds as whole units followed by one remainder unit,
// which may be zero.
func (c *Controller) Sleep(ctx context.Context, totalSeconds int) error {
	if totalSeconds < 0 {
		return fmt.Errorf("dutycycle: negative sleep %d", totalSeconds)
	}
	const unitSeconds = UnitMillis / 1000

	units := totalSeconds / unitSeconds
	rest := (totalSeconds % unitSeconds) * 1000

	c.logger.Debug("entering low power", "seconds", totalSeconds, "units", units, "remainder_ms", rest)
	for i := 0; i < units; i++ {
		if err := c.sleeper.SleepBounded(ctx, UnitMillis); err != nil {
			return fmt.Errorf("sleep unit %d: %w", i, err)
		}
	}
	if err := c.sleeper.SleepBounded(ctx, rest); err != nil {
		return fmt.Errorf("sleep remainder: %w", err)
	}
	return nil
}

// HostSleeper implements Sleeper with a timer on a host that has no
// hardware low-power mode.
type HostSleeper struct{}

func (HostSleeper) SleepBounded(ctx context.Context, ms int) error {
	if ms < 0 || ms > UnitMillis {
		return ErrUnitTooLong
	}
	if ms == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
