// Command softpwmd runs soft PWM channels on a Linux board's GPIO pins from
// a YAML profile until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softpwm/core"
	"softpwm/host/profile"
	"softpwm/linux"

	"periph.io/x/host/v3"
)

var (
	profilePath   = flag.String("profile", "softpwm.yaml", "YAML channel profile")
	debug         = flag.Bool("debug", false, "Log scheduler debug output and dump the timing ring on exit")
	statsInterval = flag.Duration("stats", 0, "Log scheduler statistics at this interval (0 = off)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := run(); err != nil {
		log.Printf("softpwmd: %v", err)
		os.Exit(1)
	}
}

func run() error {
	p, err := profile.Load(*profilePath)
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	if *debug {
		core.SetDebugWriter(func(s string) { log.Print(s) })
		core.SetDebugEnabled(true)
	}

	gpio := linux.NewGPIO(p.PinNames())
	timer := linux.NewTimer(nil)
	sched, err := core.NewScheduler(p.SchedulerConfig(), gpio, timer)
	if err != nil {
		return err
	}
	defer func() {
		// No tick may run past this point, or it could drive a pin high
		// after StopAll.
		timer.Close()
		sched.StopAll(false)
		if err := gpio.Halt(); err != nil {
			log.Printf("halt pins: %v", err)
		}
		if core.IsDebugEnabled() {
			core.DumpTimingRing()
		}
	}()

	if err := startChannels(sched, p); err != nil {
		return err
	}
	log.Printf("running %d channels at %.1f Hz tick (%.2f Hz PWM)",
		sched.Stats().Active, p.FrequencyHz, sched.Config().PWMFrequency())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var statsC <-chan time.Time
	if *statsInterval > 0 {
		ticker := time.NewTicker(*statsInterval)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("shutting down")
			return nil
		case <-statsC:
			s := sched.Stats()
			log.Printf("ticks=%d late=%d wraps=%d pin_errors=%d active=%d",
				s.Ticks, s.Late, s.Wraps, s.PinErrors, s.Active)
		}
	}
}

// startChannels creates every profile channel; disabled ones are stopped
// right after creation so they keep their pin configured low.
func startChannels(sched *core.Scheduler, p *profile.Profile) error {
	for _, c := range p.Channels {
		ch, err := sched.Init(core.GPIOPin(c.Pin))
		if err != nil {
			return fmt.Errorf("channel %q: %w", c.Name, err)
		}
		ch.Set(c.Duty)
		if !c.IsEnabled() {
			sched.Stop(ch)
		}
		log.Printf("channel %-12s pin=%-2d duty=%3d/256 enabled=%v", c.Name, c.Pin, c.Duty, c.IsEnabled())
	}
	return nil
}
