// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectEstimatorType(t *testing.T) {
	tests := []struct {
		correlated bool
		nblocks    int
		want       EstimatorType
	}{
		{false, 0, EstimatorNoop},
		{true, 0, EstimatorNoop},
		{false, 1, EstimatorUncorrelated},
		{false, 16, EstimatorFixedBlock},
		{true, 1, EstimatorCorrelated},
		{true, 16, EstimatorCorrelated},
	}
	for _, tt := range tests {
		if got := SelectEstimatorType(tt.correlated, tt.nblocks); got != tt.want {
			t.Errorf("SelectEstimatorType(%v, %d) = %v, want %v", tt.correlated, tt.nblocks, got, tt.want)
		}
	}
}

func TestUncorrelatedEstimator_ConstantData(t *testing.T) {
	const n, nobs = 64, 3
	data := make([]float64, n*nobs)
	for i := range data {
		data[i] = 1.3
	}
	avg := make([]float64, nobs)
	errs := make([]float64, nobs)
	UncorrelatedEstimator(n, nobs, data, avg, errs)
	for j := 0; j < nobs; j++ {
		assert.InDelta(t, 1.3, avg[j], 1e-14)
		assert.Zero(t, errs[j])
	}
}

func TestUncorrelatedEstimator_SingleSample(t *testing.T) {
	avg := make([]float64, 1)
	errs := []float64{-1}
	UncorrelatedEstimator(1, 1, []float64{4.2}, avg, errs)
	assert.Equal(t, 4.2, avg[0])
	assert.Zero(t, errs[0])
}

func TestUncorrelatedEstimator_KnownVariance(t *testing.T) {
	// alternating +-1: mean 0, sample variance n/(n-1), err = sqrt(1/(n-1))
	const n = 100
	data := make([]float64, n)
	for i := range data {
		if i%2 == 0 {
			data[i] = 1
		} else {
			data[i] = -1
		}
	}
	avg := make([]float64, 1)
	errs := make([]float64, 1)
	UncorrelatedEstimator(n, 1, data, avg, errs)
	assert.InDelta(t, 0, avg[0], 1e-14)
	assert.InDelta(t, math.Sqrt(float64(n)/float64(n-1))/math.Sqrt(n), errs[0], 1e-12)
}

func TestBlockEstimator_GrandMean(t *testing.T) {
	// when nblocks divides n, the block estimator's mean equals the
	// grand mean exactly (up to FP noise)
	const n, nobs = 1024, 2
	datax, _, _, _ := getTestWalk(t)
	data := datax[:n*nobs]

	ref := arrayAvgND(n, nobs, data)
	avg := make([]float64, nobs)
	errs := make([]float64, nobs)
	BlockEstimator(16)(n, nobs, data, avg, errs)
	for j := 0; j < nobs; j++ {
		assert.InDelta(t, ref[j], avg[j], 1e-12)
		assert.Greater(t, errs[j], 0.0)
	}
}

func TestFCBlockerAndMJBlocker_Identical(t *testing.T) {
	datax, _, _, _ := getTestWalk(t)

	avgFC := make([]float64, walkNdim)
	errFC := make([]float64, walkNdim)
	FCBlockerEstimator(walkNmc, walkNdim, datax, avgFC, errFC)

	avgMJ := make([]float64, walkNdim)
	errMJ := make([]float64, walkNdim)
	MJBlockerEstimator(walkNmc, walkNdim, datax, avgMJ, errMJ)

	for j := 0; j < walkNdim; j++ {
		assert.InDelta(t, avgFC[j], avgMJ[j], 1e-12)
		assert.InDelta(t, errFC[j], errMJ[j], 1e-12)
	}
}

func TestEstimators_GaussianWalk(t *testing.T) {
	// the scenario from the reference suite: a 2-particle walk in a
	// 1-dim gaussian orbital, Nmc 32768; all estimators must agree on
	// the average, and the two blocking estimators must bound the (near
	// zero) reference within 3 errors
	datax, _, _, _ := getTestWalk(t)
	refAvg := arrayAvgND(walkNmc, walkNdim, datax)

	avg := make([]float64, walkNdim)
	errs := make([]float64, walkNdim)

	UncorrelatedEstimator(walkNmc, walkNdim, datax, avg, errs)
	for j := 0; j < walkNdim; j++ {
		require.InDelta(t, refAvg[j], avg[j], 1e-8)
	}

	BlockEstimator(2048)(walkNmc, walkNdim, datax, avg, errs)
	for j := 0; j < walkNdim; j++ {
		require.InDelta(t, refAvg[j], avg[j], 1e-8)
	}

	FCBlockerEstimator(walkNmc, walkNdim, datax, avg, errs)
	for j := 0; j < walkNdim; j++ {
		require.InDelta(t, refAvg[j], avg[j], 5e-4)
		require.Less(t, math.Abs(avg[j]-refAvg[j]), 3*errs[j]+1e-15)
		require.Greater(t, errs[j], 0.0)
	}

	MJBlockerEstimator(walkNmc, walkNdim, datax, avg, errs)
	for j := 0; j < walkNdim; j++ {
		require.InDelta(t, refAvg[j], avg[j], 5e-4)
		require.Less(t, math.Abs(avg[j]-refAvg[j]), 3*errs[j]+1e-15)
	}
}

func TestNoopEstimator(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	avg := make([]float64, 1)
	errs := []float64{0}
	NoopEstimator(4, 1, data, avg, errs)
	assert.InDelta(t, 2.5, avg[0], 1e-14)
	assert.Zero(t, errs[0])
}
