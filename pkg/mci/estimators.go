// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "math"

// Estimator reduces n stored samples of dimension nobs (row-major) to
// per-component averages and standard errors of the mean, written into
// avg and errs (both length nobs).
type Estimator func(n int64, nobs int, data []float64, avg, errs []float64)

// EstimatorType selects one of the built-in estimators.
type EstimatorType int

const (
	// EstimatorNoop computes averages only and reports zero error.
	EstimatorNoop EstimatorType = iota
	// EstimatorUncorrelated assumes statistically independent samples.
	EstimatorUncorrelated
	// EstimatorFixedBlock averages a fixed number of consecutive blocks
	// before applying the uncorrelated estimator.
	EstimatorFixedBlock
	// EstimatorCorrelated applies iterative Flyvbjerg-Petersen blocking
	// for an autocorrelation-aware error.
	EstimatorCorrelated
)

// String returns the estimator type name.
func (t EstimatorType) String() string {
	switch t {
	case EstimatorNoop:
		return "noop"
	case EstimatorUncorrelated:
		return "uncorrelated"
	case EstimatorFixedBlock:
		return "fixed-block"
	case EstimatorCorrelated:
		return "correlated"
	default:
		return "unknown"
	}
}

// SelectEstimatorType picks the estimator for an observable. nblocks
// follows the AddObservable convention: 0 disables error estimation,
// 1 requests plain uncorrelated errors over the full history, larger
// values request fixed-block estimation. The correlated flag overrides
// the blocking choice whenever errors are requested.
func SelectEstimatorType(correlated bool, nblocks int) EstimatorType {
	switch {
	case nblocks < 1:
		return EstimatorNoop
	case correlated:
		return EstimatorCorrelated
	case nblocks == 1:
		return EstimatorUncorrelated
	default:
		return EstimatorFixedBlock
	}
}

// =============================================================================
// Plain estimators
// =============================================================================

// NoopEstimator computes the mean and leaves the error at zero. It must
// not be paired with automatic equilibration, which needs error bars.
func NoopEstimator(n int64, nobs int, data []float64, avg, errs []float64) {
	meanND(n, nobs, data, avg)
	for i := range errs[:nobs] {
		errs[i] = 0
	}
}

// UncorrelatedEstimator computes the mean and the standard error of the
// mean under the assumption of uncorrelated samples: err = std/sqrt(n),
// with the sample standard deviation using divisor n-1 (0 for n == 1).
func UncorrelatedEstimator(n int64, nobs int, data []float64, avg, errs []float64) {
	meanND(n, nobs, data, avg)
	for i := range errs[:nobs] {
		errs[i] = 0
	}
	if n < 2 {
		return
	}
	// deviations are taken from the first sample, so that constant data
	// yields exactly zero variance
	for j := 0; j < nobs; j++ {
		shift, s := data[j], 0.0
		for i := int64(0); i < n; i++ {
			d := data[i*int64(nobs)+int64(j)] - shift
			s += d
			errs[j] += d * d
		}
		variance := math.Max(0, errs[j]-s*s/float64(n)) / float64(n-1)
		errs[j] = math.Sqrt(variance / float64(n))
	}
}

// BlockEstimator returns a fixed-block estimator: the n samples are
// reshaped into nblocks consecutive blocks of equal length n/nblocks
// (trailing samples beyond nblocks*(n/nblocks) are dropped), the block
// means are computed, and the uncorrelated estimator is applied to
// those means.
func BlockEstimator(nblocks int64) Estimator {
	return func(n int64, nobs int, data []float64, avg, errs []float64) {
		if nblocks < 1 || n < nblocks {
			UncorrelatedEstimator(n, nobs, data, avg, errs)
			return
		}
		blocklen := n / nblocks
		means := make([]float64, nblocks*int64(nobs))
		for b := int64(0); b < nblocks; b++ {
			for i := b * blocklen; i < (b+1)*blocklen; i++ {
				for j := 0; j < nobs; j++ {
					means[b*int64(nobs)+int64(j)] += data[i*int64(nobs)+int64(j)]
				}
			}
		}
		norm := 1 / float64(blocklen)
		for i := range means {
			means[i] *= norm
		}
		UncorrelatedEstimator(nblocks, nobs, means, avg, errs)
	}
}

// =============================================================================
// Flyvbjerg-Petersen blocking
// =============================================================================

// FCBlockerEstimator computes an autocorrelation-aware standard error by
// iterative Flyvbjerg-Petersen blocking, dimension by dimension: adjacent
// samples are pair-averaged level by level, the naive standard error of
// the mean is recorded at each level, and the reported error is the
// maximum over all levels. With correlated data the naive error grows
// with blocking until the samples decorrelate, so the maximum sits on
// the plateau.
//
// The classic formulation requires n to be a power of two; here a
// trailing odd sample is truncated at each level instead.
func FCBlockerEstimator(n int64, nobs int, data []float64, avg, errs []float64) {
	meanND(n, nobs, data, avg)
	series := make([]float64, n)
	for j := 0; j < nobs; j++ {
		for i := int64(0); i < n; i++ {
			series[i] = data[i*int64(nobs)+int64(j)]
		}
		errs[j] = blockingError(series)
	}
}

// MJBlockerEstimator is the multi-dimensional form of the correlated
// estimator. It produces results identical to running the blocking
// procedure independently for every observable dimension.
func MJBlockerEstimator(n int64, nobs int, data []float64, avg, errs []float64) {
	meanND(n, nobs, data, avg)
	work := make([]float64, n*int64(nobs))
	copy(work, data[:n*int64(nobs)])
	for j := range errs[:nobs] {
		errs[j] = 0
	}

	m := n
	for m >= 2 {
		for j := 0; j < nobs; j++ {
			se := naiveErrorStrided(work, m, nobs, j)
			if se > errs[j] {
				errs[j] = se
			}
		}
		half := m / 2
		for i := int64(0); i < half; i++ {
			for j := 0; j < nobs; j++ {
				work[i*int64(nobs)+int64(j)] = 0.5 * (work[2*i*int64(nobs)+int64(j)] + work[(2*i+1)*int64(nobs)+int64(j)])
			}
		}
		m = half
	}
}

// blockingError runs the pair-averaging loop on one series, in place,
// returning the maximum naive standard error over all blocking levels.
func blockingError(series []float64) float64 {
	maxErr := 0.0
	for len(series) >= 2 {
		if se := naiveError(series); se > maxErr {
			maxErr = se
		}
		half := len(series) / 2
		for i := 0; i < half; i++ {
			series[i] = 0.5 * (series[2*i] + series[2*i+1])
		}
		series = series[:half]
	}
	return maxErr
}

// naiveError is std/sqrt(m) with sample variance (divisor m-1).
func naiveError(series []float64) float64 {
	m := len(series)
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(m)
	variance := 0.0
	for _, v := range series {
		d := v - mean
		variance += d * d
	}
	variance /= float64(m - 1)
	return math.Sqrt(variance / float64(m))
}

// naiveErrorStrided is naiveError over column j of the first m rows of
// a row-major matrix with nobs columns.
func naiveErrorStrided(data []float64, m int64, nobs, j int) float64 {
	mean := 0.0
	for i := int64(0); i < m; i++ {
		mean += data[i*int64(nobs)+int64(j)]
	}
	mean /= float64(m)
	variance := 0.0
	for i := int64(0); i < m; i++ {
		d := data[i*int64(nobs)+int64(j)] - mean
		variance += d * d
	}
	variance /= float64(m - 1)
	return math.Sqrt(variance / float64(m))
}

// meanND writes the column means of the n x nobs row-major matrix into
// out.
func meanND(n int64, nobs int, data []float64, out []float64) {
	for j := range out[:nobs] {
		out[j] = 0
	}
	for i := int64(0); i < n; i++ {
		for j := 0; j < nobs; j++ {
			out[j] += data[i*int64(nobs)+int64(j)]
		}
	}
	for j := 0; j < nobs; j++ {
		out[j] /= float64(n)
	}
}
