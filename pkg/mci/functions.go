// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "math"

// Built-in sampling functions and observables. They serve as ready-made
// integrands for the CLI and as reference implementations of the
// SamplingFunction / ObservableFunction contracts, including the
// selective-update paths.

// =============================================================================
// Sampling functions
// =============================================================================

// GaussPDF is the density exp(-|x|^2), with one proto-value x_i^2 per
// dimension so that partial moves update cheaply.
type GaussPDF struct {
	ProtoValues
	ndim int
}

// NewGaussPDF creates a gaussian density component of the given
// dimension.
func NewGaussPDF(ndim int) *GaussPDF {
	return &GaussPDF{ProtoValues: NewProtoValues(ndim), ndim: ndim}
}

func (p *GaussPDF) NDim() int { return p.ndim }

func (p *GaussPDF) ProtoFunction(x, protov []float64) {
	for i := 0; i < p.ndim; i++ {
		protov[i] = x[i] * x[i]
	}
}

func (p *GaussPDF) Density(protov []float64) float64 {
	return math.Exp(-sum(protov))
}

func (p *GaussPDF) Acceptance(protoOld, protoNew []float64) float64 {
	return math.Exp(sum(protoOld) - sum(protoNew))
}

func (p *GaussPDF) UpdatedAcceptance(_, xNew []float64, nchanged int, changedIdx []int, pvOld, pvNew []float64) float64 {
	expf := 0.0
	for _, idx := range changedIdx[:nchanged] {
		pvNew[idx] = xNew[idx] * xNew[idx]
		expf += pvNew[idx] - pvOld[idx]
	}
	return math.Exp(-expf)
}

func (p *GaussPDF) Duplicate() SamplingFunction { return NewGaussPDF(p.ndim) }

// ExpPDF is the density exp(-sum|x_i|), with a single proto-value
// holding the exponent.
type ExpPDF struct {
	ProtoValues
	ndim int
}

// NewExpPDF creates an exponential density component of the given
// dimension.
func NewExpPDF(ndim int) *ExpPDF {
	return &ExpPDF{ProtoValues: NewProtoValues(1), ndim: ndim}
}

func (p *ExpPDF) NDim() int { return p.ndim }

func (p *ExpPDF) ProtoFunction(x, protov []float64) {
	s := 0.0
	for i := 0; i < p.ndim; i++ {
		s += math.Abs(x[i])
	}
	protov[0] = s
}

func (p *ExpPDF) Density(protov []float64) float64 {
	return math.Exp(-protov[0])
}

func (p *ExpPDF) Acceptance(protoOld, protoNew []float64) float64 {
	return math.Exp(protoOld[0] - protoNew[0])
}

func (p *ExpPDF) Duplicate() SamplingFunction { return NewExpPDF(p.ndim) }

// =============================================================================
// Observables
// =============================================================================

// XObs observes the walker position itself, one value per dimension.
// It supports selective updates.
type XObs struct {
	ndim int
}

// NewXObs creates a position observable of the given dimension.
func NewXObs(ndim int) *XObs { return &XObs{ndim: ndim} }

func (o *XObs) NDim() int { return o.ndim }
func (o *XObs) NObs() int { return o.ndim }

func (o *XObs) Evaluate(x, out []float64) {
	copy(out[:o.ndim], x[:o.ndim])
}

func (o *XObs) EvaluateUpdated(x []float64, _ int, changedFlags []bool, out []float64) {
	for i := 0; i < o.ndim; i++ {
		if changedFlags[i] {
			out[i] = x[i]
		}
	}
}

func (o *XObs) Duplicate() ObservableFunction { return NewXObs(o.ndim) }

// X2Obs observes the per-dimension squares x_i^2. It supports selective
// updates.
type X2Obs struct {
	ndim int
}

// NewX2Obs creates a squared-position observable of the given
// dimension.
func NewX2Obs(ndim int) *X2Obs { return &X2Obs{ndim: ndim} }

func (o *X2Obs) NDim() int { return o.ndim }
func (o *X2Obs) NObs() int { return o.ndim }

func (o *X2Obs) Evaluate(x, out []float64) {
	for i := 0; i < o.ndim; i++ {
		out[i] = x[i] * x[i]
	}
}

func (o *X2Obs) EvaluateUpdated(x []float64, _ int, changedFlags []bool, out []float64) {
	for i := 0; i < o.ndim; i++ {
		if changedFlags[i] {
			out[i] = x[i] * x[i]
		}
	}
}

func (o *X2Obs) Duplicate() ObservableFunction { return NewX2Obs(o.ndim) }

// XSquaredObs observes the square of the first coordinate only.
type XSquaredObs struct {
	ndim int
}

// NewXSquaredObs creates the single-valued x_0^2 observable.
func NewXSquaredObs(ndim int) *XSquaredObs { return &XSquaredObs{ndim: ndim} }

func (o *XSquaredObs) NDim() int { return o.ndim }
func (o *XSquaredObs) NObs() int { return 1 }

func (o *XSquaredObs) Evaluate(x, out []float64) {
	out[0] = x[0] * x[0]
}

func (o *XSquaredObs) Duplicate() ObservableFunction { return NewXSquaredObs(o.ndim) }

// SumObs observes the sum of all coordinates.
type SumObs struct {
	ndim int
}

// NewSumObs creates the single-valued coordinate-sum observable.
func NewSumObs(ndim int) *SumObs { return &SumObs{ndim: ndim} }

func (o *SumObs) NDim() int { return o.ndim }
func (o *SumObs) NObs() int { return 1 }

func (o *SumObs) Evaluate(x, out []float64) {
	out[0] = sum(x[:o.ndim])
}

func (o *SumObs) Duplicate() ObservableFunction { return NewSumObs(o.ndim) }

// ConstObs observes a constant value, independent of the position.
// Useful for plain volume integration and as a test fixture.
type ConstObs struct {
	ndim  int
	value float64
}

// NewConstObs creates a constant observable.
func NewConstObs(ndim int, value float64) *ConstObs {
	return &ConstObs{ndim: ndim, value: value}
}

func (o *ConstObs) NDim() int { return o.ndim }
func (o *ConstObs) NObs() int { return 1 }

func (o *ConstObs) Evaluate(_, out []float64) {
	out[0] = o.value
}

func (o *ConstObs) Duplicate() ObservableFunction { return NewConstObs(o.ndim, o.value) }

func sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}
