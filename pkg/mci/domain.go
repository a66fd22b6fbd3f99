// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"fmt"
	"math"
)

// Domain is the boundary policy applied to walker positions.
//
// Two modes of application exist: Apply rectifies a full coordinate
// vector, ApplyWalker touches only the coordinates listed in the walker's
// change-set. ScaleToDomain maps coordinates drawn uniformly in [0,1)
// into the concrete domain (finite domains only).
type Domain interface {
	// NDim returns the domain dimension.
	NDim() int

	// IsFinite reports whether the domain has a finite volume.
	IsFinite() bool

	// Volume returns the domain volume, or 0 for infinite domains.
	Volume() float64

	// DimSizes writes the per-dimension extents hi_i - lo_i into out.
	// Infinite domains report +Inf extents.
	DimSizes(out []float64)

	// Apply enforces the boundary policy on every coordinate of x.
	Apply(x []float64)

	// ApplyWalker enforces the boundary policy selectively on the
	// proposed position, touching only the changed coordinates.
	ApplyWalker(wlk *WalkerState)

	// ScaleToDomain maps x, drawn uniformly in [0,1)^ndim, to domain
	// coordinates. No-op on infinite domains.
	ScaleToDomain(x []float64)

	// Duplicate returns an independent copy of the domain.
	Duplicate() Domain
}

// =============================================================================
// Unbounded domain
// =============================================================================

// UnboundDomain is the infinite domain covering all of R^ndim. It has no
// volume and applies no boundary policy. Sampling on it requires a
// sampling function.
type UnboundDomain struct {
	ndim int
}

// NewUnboundDomain creates an unbounded domain of the given dimension.
func NewUnboundDomain(ndim int) *UnboundDomain {
	return &UnboundDomain{ndim: ndim}
}

func (d *UnboundDomain) NDim() int      { return d.ndim }
func (d *UnboundDomain) IsFinite() bool { return false }
func (d *UnboundDomain) Volume() float64 {
	return 0
}

func (d *UnboundDomain) DimSizes(out []float64) {
	for i := range out[:d.ndim] {
		out[i] = math.Inf(1)
	}
}

func (d *UnboundDomain) Apply([]float64)          {}
func (d *UnboundDomain) ApplyWalker(*WalkerState) {}
func (d *UnboundDomain) ScaleToDomain([]float64)  {}
func (d *UnboundDomain) Duplicate() Domain        { return NewUnboundDomain(d.ndim) }

// =============================================================================
// Orthorhombic periodic domain
// =============================================================================

// OrthoPeriodicDomain is a finite orthorhombic box with per-dimension
// bounds [lo_i, hi_i) and periodic wrap-around. Its volume is the product
// of the extents.
type OrthoPeriodicDomain struct {
	ndim int
	lo   []float64
	hi   []float64
}

// NewOrthoPeriodicDomain creates a periodic box with uniform bounds
// [lo, hi) in every dimension.
func NewOrthoPeriodicDomain(ndim int, lo, hi float64) (*OrthoPeriodicDomain, error) {
	lbounds := make([]float64, ndim)
	ubounds := make([]float64, ndim)
	for i := 0; i < ndim; i++ {
		lbounds[i] = lo
		ubounds[i] = hi
	}
	return NewOrthoPeriodicDomainBounds(lbounds, ubounds)
}

// NewOrthoPeriodicDomainBounds creates a periodic box with per-dimension
// bounds [lbounds_i, ubounds_i).
func NewOrthoPeriodicDomainBounds(lbounds, ubounds []float64) (*OrthoPeriodicDomain, error) {
	if len(lbounds) != len(ubounds) {
		return nil, fmt.Errorf("%w: %d lower bounds vs %d upper bounds", ErrDimMismatch, len(lbounds), len(ubounds))
	}
	if len(lbounds) == 0 {
		return nil, fmt.Errorf("%w: domain needs at least one dimension", ErrInvalidParameter)
	}
	d := &OrthoPeriodicDomain{
		ndim: len(lbounds),
		lo:   make([]float64, len(lbounds)),
		hi:   make([]float64, len(ubounds)),
	}
	for i := range lbounds {
		if !(ubounds[i] > lbounds[i]) {
			return nil, fmt.Errorf("%w: upper bound %g not above lower bound %g in dimension %d",
				ErrInvalidParameter, ubounds[i], lbounds[i], i)
		}
		d.lo[i] = lbounds[i]
		d.hi[i] = ubounds[i]
	}
	return d, nil
}

func (d *OrthoPeriodicDomain) NDim() int      { return d.ndim }
func (d *OrthoPeriodicDomain) IsFinite() bool { return true }

func (d *OrthoPeriodicDomain) Volume() float64 {
	vol := 1.0
	for i := 0; i < d.ndim; i++ {
		vol *= d.hi[i] - d.lo[i]
	}
	return vol
}

func (d *OrthoPeriodicDomain) DimSizes(out []float64) {
	for i := 0; i < d.ndim; i++ {
		out[i] = d.hi[i] - d.lo[i]
	}
}

func (d *OrthoPeriodicDomain) Apply(x []float64) {
	for i := range x[:d.ndim] {
		x[i] = d.wrap(i, x[i])
	}
}

func (d *OrthoPeriodicDomain) ApplyWalker(wlk *WalkerState) {
	for _, idx := range wlk.ChangedIdx[:wlk.NChanged] {
		wlk.XNew[idx] = d.wrap(idx, wlk.XNew[idx])
	}
}

func (d *OrthoPeriodicDomain) ScaleToDomain(x []float64) {
	for i := range x[:d.ndim] {
		x[i] = d.lo[i] + x[i]*(d.hi[i]-d.lo[i])
	}
}

func (d *OrthoPeriodicDomain) Duplicate() Domain {
	dup := &OrthoPeriodicDomain{
		ndim: d.ndim,
		lo:   make([]float64, d.ndim),
		hi:   make([]float64, d.ndim),
	}
	copy(dup.lo, d.lo)
	copy(dup.hi, d.hi)
	return dup
}

// wrap maps v into [lo_i, hi_i) by periodic translation.
func (d *OrthoPeriodicDomain) wrap(i int, v float64) float64 {
	size := d.hi[i] - d.lo[i]
	v = math.Mod(v-d.lo[i], size)
	if v < 0 {
		v += size
	}
	return d.lo[i] + v
}
