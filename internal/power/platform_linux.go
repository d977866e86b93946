//go:build linux

package power

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/rtc"
)

// linuxPlatform powers the board off with the RTC alarm armed. The RTC alarm
// output is wired to the board's power-enable, so the alarm powers it back on.
type linuxPlatform struct {
	irq   gpio.Interrupt
	clock rtc.Clock
	log   *logger.Logger
}

// NewPlatform returns the Linux power-off platform.
func NewPlatform(irq gpio.Interrupt, clock rtc.Clock, log *logger.Logger) Platform {
	return &linuxPlatform{irq: irq, clock: clock, log: log}
}

func (p *linuxPlatform) WakeCause() (WakeCause, error) {
	return ClassifyWake(p.irq, p.clock)
}

func (p *linuxPlatform) Sleep() error {
	p.log.Infow("powering off")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}
