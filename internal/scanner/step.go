package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/fpv-interceptor/internal/analysis"
	"github.com/roman-kulish/fpv-interceptor/internal/registry"
	"github.com/roman-kulish/fpv-interceptor/internal/rssi"
)

// errInterrupted is returned by a step abandoned before its reading was taken
var errInterrupted = errors.New("step interrupted")

// stepMode selects how a step tunes and what it records in the registry
type stepMode int

const (
	sweepStep   stepMode = iota // tunes first, records every reading above the threshold
	monitorStep                 // already tuned, records video detections only
)

type stepOutcome struct {
	sample rssi.Sample
	video  bool
}

// step runs the per-step algorithm on one frequency: tune (sweeps only),
// stabilise, acquire, detect, record. A step either takes its reading and
// records it completely, or records nothing.
func (c *Controller) step(ctx context.Context, r *run, mhz uint16, mode stepMode) (stepOutcome, error) {
	if mode == sweepStep {
		if err := c.port.SetFrequency(mhz); err != nil {
			return stepOutcome{}, err
		}
		if !c.sleep(ctx, r, c.stabilization) {
			return stepOutcome{}, errInterrupted
		}
	}

	sample, err := c.acquirer.Sample(mhz)
	if err != nil {
		return stepOutcome{}, err
	}

	reading := sample.Corrected
	out := stepOutcome{
		sample: sample,
		video:  analysis.DetectVideo(reading, &sample.History),
	}

	c.status.OnRSSISample(reading, mhz)

	if reading > analysis.RSSIThreshold && (mode == sweepStep || out.video) {
		if err = c.registry.Upsert(mhz, reading, out.video); err != nil {
			// the scan carries on; the observation is dropped
			if errors.Is(err, registry.ErrCapacityExceeded) {
				c.logger.Warn("signal not recorded", slog.Int("frequency", int(mhz)), slog.Any("error", err))
				c.status.OnStatus(fmt.Sprintf("registry full, %d MHz not recorded", mhz))
			} else {
				c.logger.Error("signal not recorded", slog.Int("frequency", int(mhz)), slog.Any("error", err))
			}
		}
	}

	if out.video {
		c.logger.Info("video signal detected", slog.Int("frequency", int(mhz)), slog.Int("rssi", int(reading)))
		c.capture.OnSignalDetected(mhz, reading)
	}

	return out, nil
}
