// Package estimation drives a single track through a measurement sequence:
// it bootstraps the filter from the first two measurements and then runs one
// predict, associate, update cycle per later timestamp, recording a filtered
// output after each cycle.
package estimation

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/radartrack/internal/association"
	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/kalman"
	"github.com/banshee-data/radartrack/internal/monitoring"
	"github.com/banshee-data/radartrack/internal/track"
)

// ErrInsufficientData is returned when fewer than two measurements are
// supplied; no filtering takes place.
var ErrInsufficientData = errors.New("estimation: at least 2 measurements are required")

// Config holds the loop parameters. It is fixed for the lifetime of a Loop.
type Config struct {
	Filter kalman.Config

	// SynthesizeCandidates replaces every measurement with its linear
	// extrapolation m + v*(t - t1), where v is the bootstrap velocity and t1
	// the second measurement's time. When false the raw measurements are the
	// candidates.
	SynthesizeCandidates bool

	// SeedVelocity initializes the track with the bootstrap velocity instead
	// of zero on the second Initialize.
	SeedVelocity bool

	// StrictTimeOrder turns non-positive time steps into fatal errors,
	// including a zero or negative bootstrap interval.
	StrictTimeOrder bool
}

// DefaultConfig returns the reference loop configuration.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Filter:               kalman.ConfigFromTuning(cfg),
		SynthesizeCandidates: cfg.GetSynthesizeCandidates(),
		SeedVelocity:         cfg.GetSeedVelocity(),
		StrictTimeOrder:      cfg.GetStrictTimeOrder(),
	}
}

// Result is everything a run produced. When Run fails after bootstrap, the
// outputs computed before the failure are retained.
type Result struct {
	Outputs           []track.Output
	BootstrapVelocity [3]float64
	Cycles            int // completed predict/update cycles
	Warnings          int // non-fatal timestamp-order conditions
}

// Loop runs the estimation cycle. Each Run owns a fresh filter, so a Loop
// may be reused for independent sequences, including concurrently.
type Loop struct {
	cfg    Config
	engine association.Engine
}

// NewLoop validates cfg and returns a Loop. A nil engine selects the
// equal-weight rule.
func NewLoop(cfg Config, engine association.Engine) (*Loop, error) {
	if _, err := kalman.NewFilter(cfg.Filter); err != nil {
		return nil, fmt.Errorf("estimation: %w", err)
	}
	if engine == nil {
		engine = association.EqualWeight{}
	}
	return &Loop{cfg: cfg, engine: engine}, nil
}

// Run processes ms in order. Measurements sharing a timestamp form one
// candidate set. The context is checked between cycles.
func (l *Loop) Run(ctx context.Context, ms []track.Measurement) (*Result, error) {
	if len(ms) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(ms))
	}

	f, err := kalman.NewFilter(l.cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("estimation: %w", err)
	}

	res := &Result{}
	m0, m1 := ms[0], ms[1]

	// Bootstrap: the second Initialize overwrites the first entirely.
	f.Initialize(m0.X, m0.Y, m0.Z, 0, 0, 0, m0.Time)

	span := m1.Time - m0.Time
	if span <= 0 && l.cfg.StrictTimeOrder {
		return nil, fmt.Errorf("estimation: bootstrap at t=%g: %w", m1.Time, kalman.ErrInvalidTimestampOrder)
	}
	var v [3]float64
	switch {
	case span == 0:
		monitoring.Warnf("estimation: bootstrap measurements share t=%g, velocity left at zero", m0.Time)
		res.Warnings++
	default:
		if span < 0 {
			monitoring.Warnf("estimation: bootstrap measurements out of order (t0=%g, t1=%g)", m0.Time, m1.Time)
			res.Warnings++
		}
		v = [3]float64{(m1.X - m0.X) / span, (m1.Y - m0.Y) / span, (m1.Z - m0.Z) / span}
	}
	res.BootstrapVelocity = v

	var seed [3]float64
	if l.cfg.SeedVelocity {
		seed = v
	}
	f.Initialize(m1.X, m1.Y, m1.Z, seed[0], seed[1], seed[2], m1.Time)

	for _, group := range track.GroupByTime(ms[2:]) {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t := group[0].Time
		dt := t - f.LastUpdate()
		if err := f.Predict(dt); err != nil {
			if l.cfg.StrictTimeOrder {
				return res, fmt.Errorf("estimation: predict to t=%g: %w", t, err)
			}
			monitoring.Warnf("estimation: predict to t=%g: %v", t, err)
			res.Warnings++
		}

		candidates := group
		if l.cfg.SynthesizeCandidates {
			candidates = synthesize(group, v, m1.Time)
		}

		zhat, s := f.PredictedMeasurement()
		sel, err := l.engine.Associate(association.Prediction{Position: zhat, Covariance: s}, candidates)
		if err != nil {
			return res, fmt.Errorf("estimation: associate at t=%g: %w", t, err)
		}

		if err := f.Update(sel.Selected); err != nil {
			return res, fmt.Errorf("estimation: %w", err)
		}

		res.Outputs = append(res.Outputs, track.NewOutput(t, f.State(), sel.Index, sel.Weights))
		res.Cycles++
	}

	monitoring.Logf("estimation: %d measurements, %d cycles, %d warnings", len(ms), res.Cycles, res.Warnings)
	return res, nil
}

// synthesize extrapolates each measurement with the bootstrap velocity from
// the second bootstrap time. This stands in for a sensor that reports a
// candidate set per timestamp.
func synthesize(group []track.Measurement, v [3]float64, t1 float64) []track.Measurement {
	out := make([]track.Measurement, len(group))
	for i, m := range group {
		dt := m.Time - t1
		out[i] = track.Measurement{
			Time: m.Time,
			X:    m.X + v[0]*dt,
			Y:    m.Y + v[1]*dt,
			Z:    m.Z + v[2]*dt,
		}
	}
	return out
}
