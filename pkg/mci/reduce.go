// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// EngineFactory builds the engine for one rank of a parallel run. Each
// engine must be configured identically except for its seed, so that
// the per-rank results are estimates of the same integral.
type EngineFactory func(rank int) (*MCI, error)

// RunParallel integrates with nranks independent engines on separate
// goroutines and reduces their results: the combined average is the
// arithmetic mean of the per-rank averages, the combined error is
// sqrt(sum err_i^2)/nranks elementwise. No state is shared between
// ranks; each engine owns its RNG and buffers.
//
// The context bounds engine construction only; a running Integrate is
// not cancellable.
func RunParallel(ctx context.Context, nranks int, nmc int64, factory EngineFactory) (avg, errs []float64, err error) {
	if nranks < 1 {
		return nil, nil, fmt.Errorf("%w: %d ranks", ErrInvalidParameter, nranks)
	}

	avgs := make([][]float64, nranks)
	errList := make([][]float64, nranks)

	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < nranks; rank++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			eng, err := factory(rank)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			a := make([]float64, eng.NObsDim())
			e := make([]float64, eng.NObsDim())
			if err := eng.Integrate(nmc, a, e, true, true); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			avgs[rank] = a
			errList[rank] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return ReduceAvgErr(avgs, errList)
}

// ReduceAvgErr combines per-instance averages and errors: mean of the
// averages, sqrt(sum err_i^2)/n for the errors. All rows must have the
// same length.
func ReduceAvgErr(avgs, errList [][]float64) (avg, errs []float64, err error) {
	if len(avgs) == 0 || len(avgs) != len(errList) {
		return nil, nil, fmt.Errorf("%w: %d average rows vs %d error rows", ErrInvalidParameter, len(avgs), len(errList))
	}
	nobsdim := len(avgs[0])
	avg = make([]float64, nobsdim)
	errs = make([]float64, nobsdim)
	for r := range avgs {
		if len(avgs[r]) != nobsdim || len(errList[r]) != nobsdim {
			return nil, nil, fmt.Errorf("%w: rank %d results have mismatched dimension", ErrDimMismatch, r)
		}
		for i := 0; i < nobsdim; i++ {
			avg[i] += avgs[r][i]
			errs[i] += errList[r][i] * errList[r][i]
		}
	}
	n := float64(len(avgs))
	for i := 0; i < nobsdim; i++ {
		avg[i] /= n
		errs[i] = math.Sqrt(errs[i]) / n
	}
	return avg, errs, nil
}
