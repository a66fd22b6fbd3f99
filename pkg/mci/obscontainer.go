// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "fmt"

// obsEntry pairs one accumulator with its estimator.
type obsEntry struct {
	accu      Accumulator
	estim     Estimator
	estimType EstimatorType
	flagEquil bool
}

// ObservableContainer holds the ordered list of observables registered
// with an engine, each strictly paired with an accumulator and an
// estimator. It orchestrates the per-step accumulation work and the
// final statistical reduction.
//
// Thread Safety: Not safe for concurrent use; owned by one engine.
type ObservableContainer struct {
	entries  []obsEntry
	nobsdim  int
	nskipPDF int // gcd of the strides of density-dependent observables, 0 if none
}

// NObs returns the number of registered observables.
func (c *ObservableContainer) NObs() int { return len(c.entries) }

// NObsDim returns the total observable dimension, the sum of the
// per-observable dimensions.
func (c *ObservableContainer) NObsDim() int { return c.nobsdim }

// NSkipPDF returns the combined evaluation stride of all density-
// dependent observables, or 0 when none is registered. The engine keeps
// the sampling-function proto-values observation-ready on every step
// index divisible by this stride.
func (c *ObservableContainer) NSkipPDF() int { return c.nskipPDF }

// DependsOnPDF reports whether any registered observable reads
// sampling-function state.
func (c *ObservableContainer) DependsOnPDF() bool { return c.nskipPDF > 0 }

// Accumulator returns the i-th accumulator.
func (c *ObservableContainer) Accumulator(i int) Accumulator { return c.entries[i].accu }

// ObservableFunction returns the i-th registered observable.
func (c *ObservableContainer) ObservableFunction(i int) ObservableFunction {
	return c.entries[i].accu.Observable()
}

// FlagEquil reports whether the i-th observable opted into automatic
// equilibration.
func (c *ObservableContainer) FlagEquil(i int) bool { return c.entries[i].flagEquil }

// EstimatorTypeOf returns the estimator type of the i-th observable.
func (c *ObservableContainer) EstimatorTypeOf(i int) EstimatorType { return c.entries[i].estimType }

// AddObservable appends an accumulator/estimator pair.
func (c *ObservableContainer) AddObservable(accu Accumulator, estimType EstimatorType, flagEquil bool) {
	c.entries = append(c.entries, obsEntry{
		accu:      accu,
		estim:     estimatorFor(estimType),
		estimType: estimType,
		flagEquil: flagEquil,
	})
	c.nobsdim += accu.NObs()
	c.updateNSkipPDF()
}

// PopObservable removes the most recently added observable and returns
// it, transferring ownership back to the caller. Returns nil on an
// empty container.
func (c *ObservableContainer) PopObservable() ObservableFunction {
	if len(c.entries) == 0 {
		return nil
	}
	last := c.entries[len(c.entries)-1]
	c.entries = c.entries[:len(c.entries)-1]
	c.nobsdim -= last.accu.NObs()
	c.updateNSkipPDF()
	return last.accu.Observable()
}

// Clear removes all observables.
func (c *ObservableContainer) Clear() {
	c.entries = nil
	c.nobsdim = 0
	c.nskipPDF = 0
}

// Allocate prepares all accumulators for a run of nmc steps.
func (c *ObservableContainer) Allocate(nmc int64) error {
	for i := range c.entries {
		if err := c.entries[i].accu.Allocate(nmc); err != nil {
			return fmt.Errorf("observable %d: %w", i, err)
		}
	}
	return nil
}

// Accumulate lets every accumulator process the current step.
func (c *ObservableContainer) Accumulate(wlk *WalkerState) {
	for i := range c.entries {
		c.entries[i].accu.Accumulate(wlk)
	}
}

// Finalize normalizes all accumulated data.
func (c *ObservableContainer) Finalize() error {
	for i := range c.entries {
		if err := c.entries[i].accu.Finalize(); err != nil {
			return fmt.Errorf("observable %d: %w", i, err)
		}
	}
	return nil
}

// Estimate runs every estimator over its finalized accumulator data,
// writing the concatenated averages and errors (length NObsDim each).
func (c *ObservableContainer) Estimate(avg, errs []float64) error {
	offset := 0
	for i := range c.entries {
		accu := c.entries[i].accu
		if !accu.IsFinalized() {
			return fmt.Errorf("%w: estimator of observable %d called before finalize", ErrAccumulatorState, i)
		}
		nobs := accu.NObs()
		c.entries[i].estim(accu.NStore(), nobs, accu.Data(), avg[offset:offset+nobs], errs[offset:offset+nobs])
		offset += nobs
	}
	return nil
}

// Reset clears all accumulators for a fresh accumulation without
// releasing their allocations.
func (c *ObservableContainer) Reset() {
	for i := range c.entries {
		c.entries[i].accu.Reset()
	}
}

// Deallocate releases all accumulator buffers.
func (c *ObservableContainer) Deallocate() {
	for i := range c.entries {
		c.entries[i].accu.Deallocate()
	}
}

func (c *ObservableContainer) updateNSkipPDF() {
	c.nskipPDF = 0
	for i := range c.entries {
		dep, ok := c.entries[i].accu.Observable().(DensityDependentObservable)
		if !ok || !dep.UsesPDF() {
			continue
		}
		if c.nskipPDF == 0 {
			c.nskipPDF = c.entries[i].accu.NSkip()
		} else {
			c.nskipPDF = gcd(c.nskipPDF, c.entries[i].accu.NSkip())
		}
	}
}

// estimatorFor maps an estimator type to its implementation. The
// fixed-block type uses the uncorrelated estimator, operating on the
// block means a BlockAccumulator stores.
func estimatorFor(t EstimatorType) Estimator {
	switch t {
	case EstimatorNoop:
		return NoopEstimator
	case EstimatorCorrelated:
		return MJBlockerEstimator
	default:
		return UncorrelatedEstimator
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
