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

const engineSeed = 1337

func TestIntegrate_InfiniteDomainWithoutPDF(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	require.NoError(t, m.AddObservable(NewConstObs(3, 1), 1, 1, false, false))
	err := m.Integrate(100, make([]float64, 1), make([]float64, 1), false, false)
	require.ErrorIs(t, err, ErrInfiniteDomain)
}

func TestRegistration_DimMismatch(t *testing.T) {
	m := New(3, WithSeed(engineSeed))

	require.ErrorIs(t, m.AddSamplingFunction(NewGaussPDF(2)), ErrDimMismatch)
	require.ErrorIs(t, m.AddObservable(NewXObs(2), 1, 1, false, false), ErrDimMismatch)

	_, err := m.SetTrialMove(NewUniformAllMove(2, nil))
	require.ErrorIs(t, err, ErrDimMismatch)

	d, err := NewOrthoPeriodicDomain(2, -1, 1)
	require.NoError(t, err)
	_, err = m.SetDomain(d)
	require.ErrorIs(t, err, ErrDimMismatch)
}

func TestAddObservable_EquilibrationNeedsErrors(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	err := m.AddObservable(NewXObs(3), 0, 1, true, false)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

// Scenario: 3-dimensional gaussian density, observable x_0^2. The
// expected value is 0.5.
func TestIntegrate_GaussianX2(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	require.NoError(t, m.AddSamplingFunction(NewGaussPDF(3)))
	require.NoError(t, m.AddObservable(NewXSquaredObs(3), 1, 1, true, true))

	avg := make([]float64, m.NObsDim())
	errs := make([]float64, m.NObsDim())
	require.NoError(t, m.Integrate(32768, avg, errs, true, true))

	require.Greater(t, errs[0], 0.0)
	assert.Less(t, math.Abs(avg[0]-0.5), 3*errs[0],
		"avg = %v +/- %v, expected 0.5", avg[0], errs[0])
}

// Scenario: 1-dimensional exponential density exp(-|x|), observable x.
// The expected value is 0.
func TestIntegrate_ExponentialX(t *testing.T) {
	m := New(1, WithSeed(engineSeed))
	require.NoError(t, m.AddSamplingFunction(NewExpPDF(1)))
	require.NoError(t, m.AddObservable(NewXObs(1), 1, 1, true, true))

	avg := make([]float64, 1)
	errs := make([]float64, 1)
	require.NoError(t, m.Integrate(32768, avg, errs, true, true))

	require.Greater(t, errs[0], 0.0)
	assert.Less(t, math.Abs(avg[0]), 3*errs[0],
		"avg = %v +/- %v, expected 0", avg[0], errs[0])
}

// Scenario: uniform sampling over [-1,1]^3 of the constant observable
// 1.3. The result is exactly 1.3 * volume with zero error.
func TestIntegrate_UniformConstant(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	require.NoError(t, m.SetIRange(-1, 1))
	require.NoError(t, m.AddObservable(NewConstObs(3, 1.3), 16, 1, false, false))

	avg := make([]float64, 1)
	errs := make([]float64, 1)
	require.NoError(t, m.Integrate(32768, avg, errs, false, false))

	assert.InDelta(t, 1.3*8, avg[0], 1e-10)
	assert.Zero(t, errs[0], "constant observable must have zero error")
}

// Scenario: the three accumulator variants see the same walk inside one
// engine and must agree on the average to 1e-8.
func TestIntegrate_AccumulatorVariantsAgree(t *testing.T) {
	m := New(2, WithSeed(engineSeed))
	require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))

	require.NoError(t, m.AddObservable(NewXObs(2), 0, 1, false, false))  // simple
	require.NoError(t, m.AddObservable(NewXObs(2), 16, 1, false, false)) // block
	require.NoError(t, m.AddObservable(NewXObs(2), 1, 1, false, false))  // full

	avg := make([]float64, m.NObsDim())
	errs := make([]float64, m.NObsDim())
	require.NoError(t, m.Integrate(32768, avg, errs, true, false))

	for dim := 0; dim < 2; dim++ {
		simple, block, full := avg[dim], avg[2+dim], avg[4+dim]
		assert.InDelta(t, simple, block, 1e-8, "dimension %d", dim)
		assert.InDelta(t, simple, full, 1e-8, "dimension %d", dim)
	}
}

// Scenario: step-size tuning from 1.0 on a 3-dimensional gaussian
// converges to an acceptance rate near the 0.5 target.
func TestFindMRT2Step_Converges(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	require.NoError(t, m.AddSamplingFunction(NewGaussPDF(3)))
	m.SetMRT2Step(1.0)
	m.SetNFindMRT2Iterations(-50)

	// Nmc 0 runs the tuning phase only
	require.NoError(t, m.Integrate(0, nil, nil, true, false))

	m.Sample(10000)
	rate := m.AcceptanceRate()
	assert.GreaterOrEqual(t, rate, 0.45, "tuned acceptance rate")
	assert.LessOrEqual(t, rate, 0.55, "tuned acceptance rate")
}

func TestFindMRT2Step_ExactIterations(t *testing.T) {
	m := New(2, WithSeed(engineSeed))
	require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))
	m.SetMRT2Step(1e-8) // tiny step: everything accepted, steps must grow
	m.SetNFindMRT2Iterations(3)

	require.NoError(t, m.Integrate(0, nil, nil, true, false))
	assert.Greater(t, m.GetMRT2Step(0), 1e-8)
}

func TestIntegrate_WalkerInvariantsAfterRun(t *testing.T) {
	m := New(2, WithSeed(engineSeed))
	pdf := NewGaussPDF(2)
	require.NoError(t, m.AddSamplingFunction(pdf))

	// acc + rej == ridx + 1 on every step, checked from the callback;
	// the first invocation happens at initialization, before any step
	initCall := true
	m.SetAcceptanceCallback(func(eng *MCI) {
		if initCall {
			initCall = false
			return
		}
		if got := eng.acc + eng.rej; got != eng.ridx+1 {
			t.Errorf("acc+rej = %d at step %d, want %d", got, eng.ridx, eng.ridx+1)
		}
	})
	m.Sample(1000)

	// after any completed step the walker buffers and all proto pairs
	// agree
	for i := 0; i < m.NDim(); i++ {
		assert.Equal(t, m.wlk.XOld[i], m.wlk.XNew[i], "walker buffers differ at %d", i)
	}
	for i := 0; i < pdf.NProto(); i++ {
		assert.Equal(t, pdf.ProtoOld()[i], pdf.ProtoNew()[i], "proto pair differs at %d", i)
	}
}

func TestIntegrate_DecorrelationModes(t *testing.T) {
	t.Run("fixed_steps", func(t *testing.T) {
		m := New(2, WithSeed(engineSeed))
		require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))
		require.NoError(t, m.AddObservable(NewXObs(2), 1, 1, false, false))
		m.SetNDecorrelationSteps(500)

		avg := make([]float64, 2)
		errs := make([]float64, 2)
		require.NoError(t, m.Integrate(4096, avg, errs, true, true))
	})

	t.Run("automatic", func(t *testing.T) {
		m := New(2, WithSeed(engineSeed))
		require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))
		require.NoError(t, m.AddObservable(NewXObs(2), 1, 1, true, true))
		m.SetNDecorrelationSteps(-20000)

		avg := make([]float64, 2)
		errs := make([]float64, 2)
		require.NoError(t, m.Integrate(4096, avg, errs, true, true))
	})

	t.Run("automatic_without_optins_is_empty", func(t *testing.T) {
		m := New(2, WithSeed(engineSeed))
		require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))
		require.NoError(t, m.AddObservable(NewXObs(2), 1, 1, false, false))
		m.SetNDecorrelationSteps(-20000)

		avg := make([]float64, 2)
		errs := make([]float64, 2)
		require.NoError(t, m.Integrate(1024, avg, errs, false, true))
	})
}

func TestIntegrate_RepeatedRunsSameSeedAgree(t *testing.T) {
	run := func() []float64 {
		m := New(2, WithSeed(engineSeed))
		require.NoError(t, m.AddSamplingFunction(NewGaussPDF(2)))
		require.NoError(t, m.AddObservable(NewX2Obs(2), 1, 1, false, true))
		avg := make([]float64, 2)
		errs := make([]float64, 2)
		require.NoError(t, m.Integrate(2048, avg, errs, true, false))
		return avg
	}
	assert.Equal(t, run(), run(), "identical seeds must reproduce results")
}

func TestSetters_OwnershipSwap(t *testing.T) {
	m := New(2, WithSeed(engineSeed))

	oldMove, err := m.SetTrialMove(NewGaussianAllMove(2, nil))
	require.NoError(t, err)
	require.IsType(t, &UniformAllMove{}, oldMove, "displaced default move returned")

	d, err := NewOrthoPeriodicDomain(2, -1, 1)
	require.NoError(t, err)
	oldDomain, err := m.SetDomain(d)
	require.NoError(t, err)
	require.IsType(t, &UnboundDomain{}, oldDomain)

	displaced := m.ResetDomain()
	require.Same(t, d, displaced)
}

func TestPopObservable(t *testing.T) {
	m := New(2, WithSeed(engineSeed))
	obs := NewXObs(2)
	require.NoError(t, m.AddObservable(obs, 1, 1, false, false))
	require.Equal(t, 2, m.NObsDim())

	popped := m.PopObservable()
	require.Same(t, obs, popped)
	require.Equal(t, 0, m.NObsDim())
	require.Nil(t, m.PopObservable())
}

func TestSetX_AppliesDomain(t *testing.T) {
	m := New(1, WithSeed(engineSeed))
	require.NoError(t, m.SetIRange(-1, 1))

	require.NoError(t, m.SetX(0, 1.5))
	assert.InDelta(t, -0.5, m.X(0), 1e-12)

	require.Error(t, m.SetX(7, 0))
	require.ErrorIs(t, m.SetXAll([]float64{1, 2}), ErrDimMismatch)
}

func TestNewRandomX_InsideDomain(t *testing.T) {
	m := New(3, WithSeed(engineSeed))
	require.NoError(t, m.SetIRange(-2, 2))
	m.NewRandomX()
	for i := 0; i < 3; i++ {
		x := m.X(i)
		assert.GreaterOrEqual(t, x, -2.0)
		assert.Less(t, x, 2.0)
	}
}

func TestAcceptanceRate_Uniform(t *testing.T) {
	m := New(2, WithSeed(engineSeed))
	require.NoError(t, m.SetIRange(0, 1))
	assert.Zero(t, m.AcceptanceRate())
	m.Sample(100)
	assert.Equal(t, 1.0, m.AcceptanceRate(), "uniform steps are always accepted")
}
