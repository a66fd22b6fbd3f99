// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"math"
	"math/rand/v2"
)

// testWalk generates a Metropolis random walk of particles in a
// one-dimensional gaussian orbital, recording per step which
// coordinates changed and whether the step was a fresh position. The
// recorded data drives accumulators and estimators the same way a live
// sampling run would.
type testWalk struct {
	rgen     *rand.Rand
	nmc      int
	ndim     int
	stepSize float64
	sigma    float64
	acc, rej int
}

func newTestWalk(seed uint64, nmc, ndim int, stepSize, sigma float64) *testWalk {
	return &testWalk{
		rgen:     rand.New(rand.NewPCG(seed, seed)),
		nmc:      nmc,
		ndim:     ndim,
		stepSize: stepSize,
		sigma:    sigma,
	}
}

func (w *testWalk) logPDF(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return -s / (2 * w.sigma * w.sigma)
}

// generate produces the walk: positions (nmc x ndim, row-major), the
// per-step acceptance flags, changed counts and changed indices
// (nmc x ndim). Every step moves either a single random coordinate or
// all of them, so both the selective and the full accumulator paths get
// exercised.
func (w *testWalk) generate() (datax []float64, accepted []bool, nchanged []int, changedIdx []int) {
	datax = make([]float64, w.nmc*w.ndim)
	accepted = make([]bool, w.nmc)
	nchanged = make([]int, w.nmc)
	changedIdx = make([]int, w.nmc*w.ndim)

	w.acc, w.rej = 0, 0

	cur := make([]float64, w.ndim)
	prop := make([]float64, w.ndim)
	for i := range cur {
		cur[i] = w.rgen.Float64() - 0.5
	}
	copy(datax[:w.ndim], cur)
	accepted[0] = true
	nchanged[0] = w.ndim
	for j := 0; j < w.ndim; j++ {
		changedIdx[j] = j
	}

	for i := 1; i < w.nmc; i++ {
		copy(prop, cur)
		var moved []int
		if w.rgen.Float64() < 0.5 {
			idx := w.rgen.IntN(w.ndim)
			prop[idx] += w.stepSize * (2*w.rgen.Float64() - 1)
			moved = []int{idx}
		} else {
			for j := 0; j < w.ndim; j++ {
				prop[j] += w.stepSize * (2*w.rgen.Float64() - 1)
				moved = append(moved, j)
			}
		}

		logRatio := w.logPDF(prop) - w.logPDF(cur)
		if logRatio >= 0 || w.rgen.Float64() < math.Exp(logRatio) {
			copy(cur, prop)
			accepted[i] = true
			nchanged[i] = len(moved)
			copy(changedIdx[i*w.ndim:], moved)
			w.acc++
		} else {
			accepted[i] = false
			nchanged[i] = 0
			w.rej++
		}
		copy(datax[i*w.ndim:(i+1)*w.ndim], cur)
	}
	return datax, accepted, nchanged, changedIdx
}

func (w *testWalk) acceptanceRate() float64 {
	return float64(w.acc) / float64(w.acc+w.rej)
}

// driveAccumulator feeds the recorded walk into an accumulator the way
// the sampling loop would, then finalizes it.
func driveAccumulator(accu Accumulator, nmc, ndim int, datax []float64, accepted []bool, nchanged, changedIdx []int) error {
	wlk := NewWalkerState(ndim)
	for i := 0; i < nmc; i++ {
		copy(wlk.XNew, datax[i*ndim:(i+1)*ndim])
		wlk.NChanged = nchanged[i]
		copy(wlk.ChangedIdx, changedIdx[i*ndim:(i+1)*ndim])
		wlk.Accepted = accepted[i]
		accu.Accumulate(wlk)
	}
	return accu.Finalize()
}

// arrayAvgND computes the column means of an n x nobs row-major matrix.
func arrayAvgND(n, nobs int, in []float64) []float64 {
	out := make([]float64, nobs)
	for i := 0; i < n; i++ {
		for j := 0; j < nobs; j++ {
			out[j] += in[i*nobs+j]
		}
	}
	for j := range out {
		out[j] /= float64(n)
	}
	return out
}
