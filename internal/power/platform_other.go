//go:build !linux

package power

import (
	"errors"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/rtc"
)

type unsupportedPlatform struct {
	irq   gpio.Interrupt
	clock rtc.Clock
}

// NewPlatform returns a platform that can classify the wake cause but cannot sleep.
func NewPlatform(irq gpio.Interrupt, clock rtc.Clock, log *logger.Logger) Platform {
	return &unsupportedPlatform{irq: irq, clock: clock}
}

func (p *unsupportedPlatform) WakeCause() (WakeCause, error) {
	return ClassifyWake(p.irq, p.clock)
}

func (p *unsupportedPlatform) Sleep() error {
	return errors.New("power: deep sleep not supported on this platform (requires Linux)")
}
