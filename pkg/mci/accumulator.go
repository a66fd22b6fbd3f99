// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "fmt"

// Accumulator buffers the per-step values of one observable during a
// sampling run. The variants differ in how much of the history they
// keep: a single running mean, per-block means, or the full history.
//
// Lifecycle:
//
//	deallocated -> Allocate(N) -> (Accumulate* -> Finalize -> Data
//	            -> Reset -> Accumulate* )* -> Deallocate
//
// Invariants: IsAllocated <=> NSteps > 0; IsClean <=> StepIndex == 0;
// IsFinalized only after Finalize on a non-empty accumulation;
// NData == NStore*NObs.
//
// Thread Safety: Not safe for concurrent use. An accumulator is owned
// exclusively by one observable container.
type Accumulator interface {
	// Observable returns the observable the accumulator is bound to.
	Observable() ObservableFunction

	// NObs returns the observable dimension.
	NObs() int

	// NDim returns the walker dimension.
	NDim() int

	// NSkip returns the evaluation stride: the observable is evaluated
	// on every NSkip-th step.
	NSkip() int

	// NSteps returns the planned number of accumulation steps, 0 when
	// deallocated.
	NSteps() int64

	// NAccu returns the number of observable evaluations planned for
	// the current allocation: 1 + (NSteps-1)/NSkip, or 0.
	NAccu() int64

	// NStore returns the number of stored observable vectors.
	NStore() int64

	// NData returns the total allocated data length, NStore*NObs.
	NData() int64

	// StepIndex returns the running step counter.
	StepIndex() int64

	IsAllocated() bool
	IsClean() bool
	IsFinalized() bool

	// IsUpdateable reports whether the bound observable supports
	// selective updates.
	IsUpdateable() bool

	// Data exposes the stored data, row-major with NObs columns. Only
	// meaningful after Finalize.
	Data() []float64

	// ObsValues exposes the last evaluated observable values.
	ObsValues() []float64

	// Allocate prepares the accumulator for a run of nsteps steps,
	// releasing any previous allocation. Allocation-time checks cover
	// everything the hot loop relies on.
	Allocate(nsteps int64) error

	// Accumulate processes one sampling step. Never fails; hot-loop
	// preconditions are established by Allocate.
	Accumulate(wlk *WalkerState)

	// Finalize applies the variant's normalization. It fails when the
	// planned accumulation has not completed, does nothing when
	// deallocated or when called repeatedly.
	Finalize() error

	// Reset clears counters and data for a fresh accumulation without
	// releasing the allocation. Valid in any state.
	Reset()

	// Deallocate releases the data buffer and returns the accumulator
	// to the deallocated state.
	Deallocate()
}

// accuVariant is the storage strategy plugged into accumulatorBase.
type accuVariant interface {
	// allocate sizes the data buffer for the planned run; called with
	// base.nsteps already set.
	allocate() error
	// accumulate folds base.obsValues into the data buffer.
	accumulate()
	// finalize applies normalization once, after a complete run.
	finalize()
	// reset clears variant counters; must work in deallocated state.
	reset()
	// nstore reports the number of stored observable vectors.
	nstore() int64
}

// accumulatorBase implements the shared accumulation machinery: the
// skip stride, the change-set union between evaluations, and the
// selective/full/reuse evaluation paths.
type accumulatorBase struct {
	obs    ObservableFunction
	updobs UpdateableObservable // nil when obs is not updateable

	nobs  int
	xndim int
	nskip int

	obsValues     []float64
	flagsXChanged []bool

	nsteps    int64
	data      []float64
	nchanged  int // changed coordinates accumulated since the last evaluation
	stepidx   int64
	skipidx   int
	flagFinal bool

	variant accuVariant
}

func newAccumulatorBase(obs ObservableFunction, nskip int) accumulatorBase {
	if nskip < 1 {
		nskip = 1
	}
	a := accumulatorBase{
		obs:           obs,
		nobs:          obs.NObs(),
		xndim:         obs.NDim(),
		nskip:         nskip,
		obsValues:     make([]float64, obs.NObs()),
		flagsXChanged: make([]bool, obs.NDim()),
	}
	a.updobs, _ = obs.(UpdateableObservable)
	a.init()
	return a
}

// init restores the clean pre-accumulation state. The change-set starts
// out full so that the first evaluation always computes the observable
// from scratch.
func (a *accumulatorBase) init() {
	a.stepidx = 0
	a.skipidx = 0
	a.flagFinal = false
	a.nchanged = a.xndim
	for i := range a.flagsXChanged {
		a.flagsXChanged[i] = true
	}
	for i := range a.obsValues {
		a.obsValues[i] = 0
	}
}

func (a *accumulatorBase) Observable() ObservableFunction { return a.obs }
func (a *accumulatorBase) NObs() int                      { return a.nobs }
func (a *accumulatorBase) NDim() int                      { return a.xndim }
func (a *accumulatorBase) NSkip() int                     { return a.nskip }
func (a *accumulatorBase) NSteps() int64                  { return a.nsteps }

func (a *accumulatorBase) NAccu() int64 {
	if a.nsteps > 0 {
		return 1 + (a.nsteps-1)/int64(a.nskip)
	}
	return 0
}

func (a *accumulatorBase) NStore() int64 { return a.variant.nstore() }
func (a *accumulatorBase) NData() int64  { return a.variant.nstore() * int64(a.nobs) }

func (a *accumulatorBase) StepIndex() int64   { return a.stepidx }
func (a *accumulatorBase) IsAllocated() bool  { return a.nsteps > 0 }
func (a *accumulatorBase) IsClean() bool      { return a.stepidx == 0 }
func (a *accumulatorBase) IsFinalized() bool  { return a.flagFinal }
func (a *accumulatorBase) IsUpdateable() bool { return a.updobs != nil }

func (a *accumulatorBase) Data() []float64      { return a.data }
func (a *accumulatorBase) ObsValues() []float64 { return a.obsValues }

func (a *accumulatorBase) Allocate(nsteps int64) error {
	a.Deallocate()
	if nsteps < 1 {
		return fmt.Errorf("%w: allocation of %d steps", ErrInvalidParameter, nsteps)
	}
	a.nsteps = nsteps
	if err := a.variant.allocate(); err != nil {
		a.nsteps = 0
		a.data = nil
		return err
	}
	a.Reset()
	return nil
}

func (a *accumulatorBase) Accumulate(wlk *WalkerState) {
	if a.nsteps == 0 || a.stepidx >= a.nsteps {
		return
	}

	// union this step's change-set, so the next evaluation sees every
	// coordinate touched since the last one
	if wlk.Accepted {
		for _, idx := range wlk.ChangedIdx[:wlk.NChanged] {
			if !a.flagsXChanged[idx] {
				a.flagsXChanged[idx] = true
				a.nchanged++
			}
		}
	}

	if a.skipidx == 0 {
		switch {
		case a.nchanged == 0:
			// position unchanged since the last evaluation, reuse values
		case a.updobs != nil && a.nchanged < a.xndim:
			a.updobs.EvaluateUpdated(wlk.XNew, a.nchanged, a.flagsXChanged, a.obsValues)
			a.clearChanged()
		default:
			a.obs.Evaluate(wlk.XNew, a.obsValues)
			a.clearChanged()
		}
		a.variant.accumulate()
	}

	a.stepidx++
	a.skipidx++
	if a.skipidx == a.nskip {
		a.skipidx = 0
	}
}

func (a *accumulatorBase) Finalize() error {
	if a.nsteps == 0 || a.flagFinal {
		return nil
	}
	if a.stepidx < a.nsteps {
		return fmt.Errorf("%w: finalize after %d of %d steps", ErrAccumulatorState, a.stepidx, a.nsteps)
	}
	a.variant.finalize()
	a.flagFinal = true
	return nil
}

func (a *accumulatorBase) Reset() {
	a.init()
	for i := range a.data {
		a.data[i] = 0
	}
	a.variant.reset()
}

func (a *accumulatorBase) Deallocate() {
	a.Reset()
	a.data = nil
	a.nsteps = 0
}

func (a *accumulatorBase) clearChanged() {
	a.nchanged = 0
	for i := range a.flagsXChanged {
		a.flagsXChanged[i] = false
	}
}
