package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
)

// StartSingleSweep starts one pass over the range. The range must lie inside
// the band with Start <= End.
func (c *Controller) StartSingleSweep(ctx context.Context, r band.Range) (*Handle, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return c.start(ctx, Session{Mode: ModeSingleSweep, Range: r}, func(ctx context.Context, run *run) (Result, error) {
		var result Result

		c.status.OnStatus(fmt.Sprintf("sweeping %s", r))

		if c.sweep(ctx, run, r, 1, &result, nil) {
			result.Outcome = Stopped
			return result, nil
		}

		result.Passes = 1
		result.Outcome = Completed
		c.status.OnStatus(fmt.Sprintf("sweep of %s complete: %d signals tracked", r, c.registry.Len()))

		return result, nil
	})
}

// SingleSweep runs one pass over the range and blocks until it ends
func (c *Controller) SingleSweep(ctx context.Context, r band.Range) (Result, error) {
	h, err := c.StartSingleSweep(ctx, r)
	if err != nil {
		return Result{}, err
	}
	return h.Wait()
}

// StartContinuousSweep starts sweeping the configured range until stopped,
// pausing between passes.
func (c *Controller) StartContinuousSweep(ctx context.Context) (*Handle, error) {
	r := c.sweepRange
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return c.start(ctx, Session{Mode: ModeContinuousSweep, Range: r}, func(ctx context.Context, run *run) (Result, error) {
		var result Result

		lastStatus := c.clock()
		periodic := func(mhz uint16, pass int) {
			now := c.clock()
			if now.Sub(lastStatus) < c.statusInterval {
				return
			}
			lastStatus = now
			c.status.OnStatus(fmt.Sprintf("pass %d at %d MHz: %d readings, %d signals tracked", pass, mhz, result.Steps, c.registry.Len()))
		}

		for pass := 1; ; pass++ {
			if run.stopped(ctx) {
				break
			}

			if c.sweep(ctx, run, r, pass, &result, periodic) {
				break
			}

			result.Passes++
			c.status.OnStatus(fmt.Sprintf("pass %d complete, pausing %s", pass, c.cyclePause))

			if !c.sleep(ctx, run, c.cyclePause) {
				break
			}
		}

		result.Outcome = Stopped
		return result, nil
	})
}

// sweep steps through the range once and reports whether it was stopped.
// A frequency which fails to tune is skipped without dwelling.
func (c *Controller) sweep(ctx context.Context, run *run, r band.Range, pass int, result *Result, periodic func(mhz uint16, pass int)) bool {
	for mhz := range r.Frequencies() {
		if run.stopped(ctx) {
			return true
		}

		c.setFrequency(mhz, pass)

		out, err := c.step(ctx, run, mhz, sweepStep)
		switch {
		case errors.Is(err, errInterrupted):
			return true
		case err != nil:
			result.TuneFailures++
			c.logger.Warn("tune failed", slog.Int("frequency", int(mhz)), slog.Any("error", err))
			c.status.OnStatus(fmt.Sprintf("tune failed at %d MHz: %v", mhz, err))
			continue
		}

		result.Steps++
		if out.video {
			result.Detections++
		}

		if periodic != nil {
			periodic(mhz, pass)
		}

		if !c.sleep(ctx, run, c.dwell) {
			return true
		}
	}

	return false
}

// Monitor fixes on one frequency until stopped or, with a positive duration,
// until it elapses. The frequency is tuned once; a tune failure ends the
// monitor with an error.
func (c *Controller) Monitor(ctx context.Context, mhz uint16, duration time.Duration) (*Handle, error) {
	if err := band.Validate(mhz); err != nil {
		return nil, err
	}

	s := Session{Mode: ModeMonitor, Range: band.Range{Start: mhz, End: mhz}}

	return c.start(ctx, s, func(ctx context.Context, run *run) (Result, error) {
		var result Result

		c.setFrequency(mhz, 0)

		if err := c.port.SetFrequency(mhz); err != nil {
			result.Outcome = Failed
			result.TuneFailures = 1
			return result, fmt.Errorf("monitor %d MHz: %w", mhz, err)
		}
		if !c.sleep(ctx, run, c.stabilization) {
			result.Outcome = Stopped
			return result, nil
		}

		if duration > 0 {
			c.status.OnStatus(fmt.Sprintf("monitoring %d MHz for %s", mhz, duration))
		} else {
			c.status.OnStatus(fmt.Sprintf("monitoring %d MHz", mhz))
		}

		started := c.clock()
		var (
			lastReading  int
			lastReported time.Time
		)

		for {
			if run.stopped(ctx) {
				result.Outcome = Stopped
				return result, nil
			}

			elapsed := c.clock().Sub(started)
			if duration > 0 && elapsed >= duration {
				break
			}

			out, err := c.step(ctx, run, mhz, monitorStep)
			if err != nil {
				result.Outcome = Failed
				return result, fmt.Errorf("monitor %d MHz: %w", mhz, err)
			}

			result.Steps++
			if out.video {
				result.Detections++
			}

			reading := int(out.sample.Corrected)
			if now := c.clock(); reading-lastReading > monitorReportDelta || lastReading-reading > monitorReportDelta ||
				now.Sub(lastReported) >= monitorReportInterval {
				c.status.OnStatus(fmt.Sprintf("%d MHz: rssi %d, video %s", mhz, reading, yesNo(out.video)))
				lastReading = reading
				lastReported = now
			}

			wait := c.dwell
			if duration > 0 {
				wait = min(wait, duration-c.clock().Sub(started))
			}
			if !c.sleep(ctx, run, wait) {
				result.Outcome = Stopped
				return result, nil
			}
		}

		if result.Detections == 0 {
			result.Outcome = TimedOut
			c.status.OnStatus(fmt.Sprintf("monitor of %d MHz timed out without detection", mhz))
		} else {
			result.Outcome = Completed
		}

		return result, nil
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
