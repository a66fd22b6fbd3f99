// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "fmt"

// =============================================================================
// Simple accumulator
// =============================================================================

// SimpleAccumulator keeps a single running sum of the observable values
// and normalizes it to the mean on finalize. It stores exactly one
// observable vector.
type SimpleAccumulator struct {
	accumulatorBase
}

// NewSimpleAccumulator creates a simple accumulator evaluating obs on
// every nskip-th step.
func NewSimpleAccumulator(obs ObservableFunction, nskip int) *SimpleAccumulator {
	a := &SimpleAccumulator{}
	a.accumulatorBase = newAccumulatorBase(obs, nskip)
	a.variant = a
	return a
}

func (a *SimpleAccumulator) allocate() error {
	a.data = make([]float64, a.nobs)
	return nil
}

func (a *SimpleAccumulator) accumulate() {
	for j, val := range a.obsValues {
		a.data[j] += val
	}
}

func (a *SimpleAccumulator) finalize() {
	norm := 1 / float64(a.NAccu())
	for j := range a.data {
		a.data[j] *= norm
	}
}

func (a *SimpleAccumulator) reset() {}

func (a *SimpleAccumulator) nstore() int64 {
	if a.nsteps > 0 {
		return 1
	}
	return 0
}

// =============================================================================
// Block accumulator
// =============================================================================

// BlockAccumulator accumulates the observable into a fixed number of
// consecutive blocks and normalizes each block to its mean on finalize.
// Evaluations beyond nblocks*blocklen (when the block count does not
// divide the evaluation count) do not alter the stored data.
type BlockAccumulator struct {
	accumulatorBase
	nblocks  int64
	blocklen int64
	accuidx  int64 // running evaluation counter
}

// NewBlockAccumulator creates a block accumulator with nblocks blocks,
// evaluating obs on every nskip-th step.
func NewBlockAccumulator(obs ObservableFunction, nskip int, nblocks int) *BlockAccumulator {
	if nblocks < 1 {
		nblocks = 1
	}
	a := &BlockAccumulator{nblocks: int64(nblocks)}
	a.accumulatorBase = newAccumulatorBase(obs, nskip)
	a.variant = a
	return a
}

// NBlocks returns the configured number of blocks.
func (a *BlockAccumulator) NBlocks() int64 { return a.nblocks }

func (a *BlockAccumulator) allocate() error {
	naccu := a.NAccu()
	if naccu < a.nblocks {
		return fmt.Errorf("%w: %d blocks but only %d observable evaluations", ErrInvalidParameter, a.nblocks, naccu)
	}
	a.blocklen = naccu / a.nblocks
	a.data = make([]float64, a.nblocks*int64(a.nobs))
	return nil
}

func (a *BlockAccumulator) accumulate() {
	bidx := a.accuidx / a.blocklen
	if bidx < a.nblocks { // trailing evaluations are dropped
		offset := bidx * int64(a.nobs)
		for j, val := range a.obsValues {
			a.data[offset+int64(j)] += val
		}
	}
	a.accuidx++
}

func (a *BlockAccumulator) finalize() {
	norm := 1 / float64(a.blocklen)
	for j := range a.data {
		a.data[j] *= norm
	}
}

func (a *BlockAccumulator) reset() {
	a.accuidx = 0
}

func (a *BlockAccumulator) nstore() int64 {
	if a.nsteps > 0 {
		return a.nblocks
	}
	return 0
}

// =============================================================================
// Full accumulator
// =============================================================================

// FullAccumulator stores every observable evaluation in insertion order.
// Finalize is the identity; the stored history feeds the correlated
// estimators.
type FullAccumulator struct {
	accumulatorBase
	accuidx int64
}

// NewFullAccumulator creates a full-history accumulator evaluating obs
// on every nskip-th step.
func NewFullAccumulator(obs ObservableFunction, nskip int) *FullAccumulator {
	a := &FullAccumulator{}
	a.accumulatorBase = newAccumulatorBase(obs, nskip)
	a.variant = a
	return a
}

func (a *FullAccumulator) allocate() error {
	a.data = make([]float64, a.NAccu()*int64(a.nobs))
	return nil
}

func (a *FullAccumulator) accumulate() {
	offset := a.accuidx * int64(a.nobs)
	copy(a.data[offset:offset+int64(a.nobs)], a.obsValues)
	a.accuidx++
}

func (a *FullAccumulator) finalize() {}

func (a *FullAccumulator) reset() {
	a.accuidx = 0
}

func (a *FullAccumulator) nstore() int64 {
	if a.nsteps > 0 {
		return a.NAccu()
	}
	return 0
}
