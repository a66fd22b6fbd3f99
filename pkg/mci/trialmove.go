// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"math/rand/v2"
)

// TrialMove proposes a new walker position from the last accepted one.
//
// ComputeTrialMove steps XNew from XOld, records which coordinates
// changed, and returns the move-proposal acceptance factor: 1 for
// symmetric proposals, the quotient q(x'->x)/q(x->x') otherwise.
//
// Moves expose a set of adjustable step sizes that the engine tunes
// toward the target acceptance rate. A move may use one step size for
// all dimensions or group dimensions into types with one step size each;
// StepSizeIndex maps a walker dimension to the index of the step size
// governing it.
type TrialMove interface {
	// NDim returns the walker dimension the move operates on.
	NDim() int

	// ComputeTrialMove proposes XNew from XOld, writing NChanged and
	// ChangedIdx on the walker, and returns the proposal acceptance
	// factor.
	ComputeTrialMove(wlk *WalkerState) float64

	// NStepSizes returns the number of adjustable step sizes.
	NStepSizes() int

	// StepSize returns step size i.
	StepSize(i int) float64

	// SetStepSize sets step size i.
	SetStepSize(i int, v float64)

	// ScaleStepSizes multiplies every step size by f.
	ScaleStepSizes(f float64)

	// StepSizeIndex maps a walker dimension to the index of the step
	// size governing it.
	StepSizeIndex(dim int) int

	// HasStepSizes reports whether the move has adjustable step sizes.
	HasStepSizes() bool

	// BindRGen hands the engine's random generator to the move, for
	// seed consistency across all stochastic parts of one engine.
	BindRGen(rgen *rand.Rand)

	// InitAt, NewToOld and OldToNew maintain the move's proto-values
	// across steps; moves without internal caches inherit no-op
	// behavior from moveBase.
	InitAt(x []float64)
	NewToOld()
	OldToNew()

	// Duplicate returns an independent copy of the move, without a
	// bound random generator.
	Duplicate() TrialMove
}

// defaultStepSize is the initial size of untuned steps.
const defaultStepSize = 1.0

// =============================================================================
// Shared move plumbing
// =============================================================================

// moveBase carries the step-size bookkeeping shared by all built-in
// moves: a list of adjustable step sizes, the dimension-to-step-size
// mapping, and the bound random generator.
type moveBase struct {
	ProtoValues
	ndim    int
	steps   []float64
	stepIdx []int // walker dim (vector index for vec moves) -> index into steps
	rgen    *rand.Rand
}

// newMoveBase builds the step bookkeeping. typeEnds partitions the
// dimension range into len(typeEnds) groups sharing one step size each:
// group t covers dims [typeEnds[t-1], typeEnds[t]). A nil typeEnds means
// a single group covering all dimensions.
func newMoveBase(ndim int, typeEnds []int) moveBase {
	if len(typeEnds) == 0 {
		typeEnds = []int{ndim}
	}
	b := moveBase{
		ProtoValues: NewProtoValues(0),
		ndim:        ndim,
		steps:       make([]float64, len(typeEnds)),
		stepIdx:     make([]int, ndim),
	}
	for i := range b.steps {
		b.steps[i] = defaultStepSize
	}
	t := 0
	for i := 0; i < ndim; i++ {
		for t < len(typeEnds)-1 && i >= typeEnds[t] {
			t++
		}
		b.stepIdx[i] = t
	}
	return b
}

func (b *moveBase) NDim() int       { return b.ndim }
func (b *moveBase) NStepSizes() int { return len(b.steps) }

func (b *moveBase) StepSize(i int) float64 { return b.steps[i] }

func (b *moveBase) SetStepSize(i int, v float64) { b.steps[i] = v }

func (b *moveBase) ScaleStepSizes(f float64) {
	for i := range b.steps {
		b.steps[i] *= f
	}
}

func (b *moveBase) StepSizeIndex(dim int) int { return b.stepIdx[dim] }

func (b *moveBase) HasStepSizes() bool { return len(b.steps) > 0 }

func (b *moveBase) BindRGen(rgen *rand.Rand) { b.rgen = rgen }

func (b *moveBase) InitAt([]float64) {}

func (b *moveBase) dupBase() moveBase {
	dup := moveBase{
		ProtoValues: NewProtoValues(0),
		ndim:        b.ndim,
		steps:       make([]float64, len(b.steps)),
		stepIdx:     make([]int, len(b.stepIdx)),
	}
	copy(dup.steps, b.steps)
	copy(dup.stepIdx, b.stepIdx)
	return dup
}
