// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

// SamplingFunction is one component of the sampling density driving the
// Metropolis walk. The density evaluated by the engine is the pointwise
// product of all registered components.
//
// A component computes cheap intermediate proto-values from a position
// (ProtoFunction) and derives both the density value and the acceptance
// quotient p(new)/p(old) from proto-values alone. The engine owns the
// commit/rollback of the proto-value pair via the embedded ProtoValues.
type SamplingFunction interface {
	// NDim returns the input dimension of the component.
	NDim() int

	// NProto returns the number of proto-values the component caches.
	NProto() int

	// ProtoFunction evaluates the proto-values of position x into protov.
	ProtoFunction(x []float64, protov []float64)

	// Density computes the non-negative density value from proto-values.
	Density(protov []float64) float64

	// Acceptance computes the quotient p(new)/p(old) from the two
	// proto-value sets.
	Acceptance(protoOld, protoNew []float64) float64

	// ProtoNew, ProtoOld, NewToOld, OldToNew are provided by embedding
	// ProtoValues.
	ProtoNew() []float64
	ProtoOld() []float64
	NewToOld()
	OldToNew()

	// Duplicate returns an independent copy of the component with fresh
	// proto-value buffers.
	Duplicate() SamplingFunction
}

// UpdateableSamplingFunction is a SamplingFunction that can compute the
// acceptance quotient of a partial move without re-evaluating all
// proto-values.
type UpdateableSamplingFunction interface {
	SamplingFunction

	// UpdatedAcceptance computes p(new)/p(old) for a move that changed
	// only the coordinates listed in changedIdx[:nchanged], updating the
	// affected entries of pvNew in place. pvOld holds the proto-values
	// of the last accepted position.
	UpdatedAcceptance(xOld, xNew []float64, nchanged int, changedIdx []int, pvOld, pvNew []float64) float64
}

// =============================================================================
// Sampling function container
// =============================================================================

// samplingFunctionContainer holds the registered density components and
// computes the product acceptance during sampling.
type samplingFunctionContainer struct {
	pdfs []SamplingFunction
}

func (c *samplingFunctionContainer) hasPDF() bool { return len(c.pdfs) > 0 }

func (c *samplingFunctionContainer) add(pdf SamplingFunction) {
	c.pdfs = append(c.pdfs, pdf)
}

func (c *samplingFunctionContainer) clear() {
	c.pdfs = nil
}

// initProtoValues establishes new == old == f(x) on every component.
func (c *samplingFunctionContainer) initProtoValues(x []float64) {
	for _, pdf := range c.pdfs {
		pdf.ProtoFunction(x, pdf.ProtoOld())
		copy(pdf.ProtoNew(), pdf.ProtoOld())
	}
}

// computeAcceptance returns the product of the per-component acceptance
// quotients for the walker's proposed move. Components supporting
// selective updates use them when only a subset of coordinates changed;
// all others recompute their new proto-values from scratch.
func (c *samplingFunctionContainer) computeAcceptance(wlk *WalkerState) float64 {
	acc := 1.0
	selective := wlk.NChanged < wlk.NDim()
	for _, pdf := range c.pdfs {
		if upd, ok := pdf.(UpdateableSamplingFunction); ok && selective {
			acc *= upd.UpdatedAcceptance(wlk.XOld, wlk.XNew, wlk.NChanged, wlk.ChangedIdx, pdf.ProtoOld(), pdf.ProtoNew())
			continue
		}
		pdf.ProtoFunction(wlk.XNew, pdf.ProtoNew())
		acc *= pdf.Acceptance(pdf.ProtoOld(), pdf.ProtoNew())
	}
	return acc
}

// prepareObservation recomputes the new proto-values at x, so that
// density-dependent observables see values consistent with the current
// position.
func (c *samplingFunctionContainer) prepareObservation(x []float64) {
	for _, pdf := range c.pdfs {
		pdf.ProtoFunction(x, pdf.ProtoNew())
	}
}

func (c *samplingFunctionContainer) newToOld() {
	for _, pdf := range c.pdfs {
		pdf.NewToOld()
	}
}

func (c *samplingFunctionContainer) oldToNew() {
	for _, pdf := range c.pdfs {
		pdf.OldToNew()
	}
}
