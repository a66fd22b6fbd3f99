// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "fmt"

// Built-in trial moves. All of them propose symmetrically, so their
// acceptance factor is always 1.

// =============================================================================
// Uniform moves
// =============================================================================

// UniformAllMove displaces every coordinate by an independent uniform
// draw in [-step, step), with the step size chosen per dimension group.
type UniformAllMove struct {
	moveBase
}

// NewUniformAllMove creates a uniform all-dimension move. typeEnds may
// be nil for a single shared step size; otherwise it partitions the
// dimensions into groups with one step size each (see newMoveBase).
func NewUniformAllMove(ndim int, typeEnds []int) *UniformAllMove {
	return &UniformAllMove{moveBase: newMoveBase(ndim, typeEnds)}
}

func (m *UniformAllMove) ComputeTrialMove(wlk *WalkerState) float64 {
	for i := 0; i < m.ndim; i++ {
		step := m.steps[m.stepIdx[i]]
		wlk.XNew[i] = wlk.XOld[i] + step*(2*m.rgen.Float64()-1)
		wlk.ChangedIdx[i] = i
	}
	wlk.NChanged = m.ndim
	return 1
}

func (m *UniformAllMove) Duplicate() TrialMove {
	return &UniformAllMove{moveBase: m.dupBase()}
}

// UniformVecMove displaces one vector of veclen consecutive coordinates
// per step, chosen uniformly at random. With veclen 1 this is the
// classic single-dimension-at-a-time move.
type UniformVecMove struct {
	moveBase
	veclen int
}

// NewUniformVecMove creates a uniform vector move over ndim/veclen
// vectors. typeEnds, if non-nil, partitions the vector indices (not the
// walker dimensions) into step-size groups. ndim must be a multiple of
// veclen.
func NewUniformVecMove(ndim, veclen int, typeEnds []int) (*UniformVecMove, error) {
	if veclen < 1 || ndim%veclen != 0 {
		return nil, fmt.Errorf("%w: ndim %d is not a multiple of veclen %d", ErrInvalidParameter, ndim, veclen)
	}
	nvecs := ndim / veclen
	if len(typeEnds) == 0 {
		typeEnds = []int{nvecs}
	}
	m := &UniformVecMove{veclen: veclen}
	m.moveBase = newMoveBase(nvecs, typeEnds)
	// stepIdx was built over vector indices; remap helpers below take
	// care of translating walker dims.
	m.ndim = ndim
	return m, nil
}

// StepSizeIndex maps a walker dimension to its vector's step size.
func (m *UniformVecMove) StepSizeIndex(dim int) int {
	return m.stepIdx[dim/m.veclen]
}

func (m *UniformVecMove) ComputeTrialMove(wlk *WalkerState) float64 {
	ivec := m.rgen.IntN(m.ndim / m.veclen)
	step := m.steps[m.stepIdx[ivec]]
	for j := 0; j < m.veclen; j++ {
		idx := ivec*m.veclen + j
		wlk.XNew[idx] = wlk.XOld[idx] + step*(2*m.rgen.Float64()-1)
		wlk.ChangedIdx[j] = idx
	}
	wlk.NChanged = m.veclen
	return 1
}

func (m *UniformVecMove) Duplicate() TrialMove {
	dup := &UniformVecMove{veclen: m.veclen}
	dup.moveBase = m.dupBase()
	return dup
}

// =============================================================================
// Gaussian moves
// =============================================================================

// GaussianAllMove displaces every coordinate by an independent gaussian
// draw with standard deviation given by its group's step size.
type GaussianAllMove struct {
	moveBase
}

// NewGaussianAllMove creates a gaussian all-dimension move; typeEnds as
// in NewUniformAllMove.
func NewGaussianAllMove(ndim int, typeEnds []int) *GaussianAllMove {
	return &GaussianAllMove{moveBase: newMoveBase(ndim, typeEnds)}
}

func (m *GaussianAllMove) ComputeTrialMove(wlk *WalkerState) float64 {
	for i := 0; i < m.ndim; i++ {
		sigma := m.steps[m.stepIdx[i]]
		wlk.XNew[i] = wlk.XOld[i] + sigma*m.rgen.NormFloat64()
		wlk.ChangedIdx[i] = i
	}
	wlk.NChanged = m.ndim
	return 1
}

func (m *GaussianAllMove) Duplicate() TrialMove {
	return &GaussianAllMove{moveBase: m.dupBase()}
}

// GaussianVecMove displaces one vector of veclen consecutive coordinates
// per step by gaussian draws.
type GaussianVecMove struct {
	moveBase
	veclen int
}

// NewGaussianVecMove creates a gaussian vector move; arguments as in
// NewUniformVecMove.
func NewGaussianVecMove(ndim, veclen int, typeEnds []int) (*GaussianVecMove, error) {
	if veclen < 1 || ndim%veclen != 0 {
		return nil, fmt.Errorf("%w: ndim %d is not a multiple of veclen %d", ErrInvalidParameter, ndim, veclen)
	}
	nvecs := ndim / veclen
	if len(typeEnds) == 0 {
		typeEnds = []int{nvecs}
	}
	m := &GaussianVecMove{veclen: veclen}
	m.moveBase = newMoveBase(nvecs, typeEnds)
	m.ndim = ndim
	return m, nil
}

// StepSizeIndex maps a walker dimension to its vector's step size.
func (m *GaussianVecMove) StepSizeIndex(dim int) int {
	return m.stepIdx[dim/m.veclen]
}

func (m *GaussianVecMove) ComputeTrialMove(wlk *WalkerState) float64 {
	ivec := m.rgen.IntN(m.ndim / m.veclen)
	sigma := m.steps[m.stepIdx[ivec]]
	for j := 0; j < m.veclen; j++ {
		idx := ivec*m.veclen + j
		wlk.XNew[idx] = wlk.XOld[idx] + sigma*m.rgen.NormFloat64()
		wlk.ChangedIdx[j] = idx
	}
	wlk.NChanged = m.veclen
	return 1
}

func (m *GaussianVecMove) Duplicate() TrialMove {
	dup := &GaussianVecMove{veclen: m.veclen}
	dup.moveBase = m.dupBase()
	return dup
}
