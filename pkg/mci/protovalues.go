// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

// ProtoValues holds the paired new/old temporaries of a proto-function.
//
// Proto-values are cached intermediate scalars evaluated for every newly
// proposed trial move inside an accept/reject sampling scheme. A proto-
// function keeps a "constant" set for the previously accepted position
// (old) and a variable set for the newly proposed one (new). Whenever a
// proposal is accepted, NewToOld commits the new values; on rejection
// OldToNew restores them. This makes partial-move evaluations consistent
// and reversible.
//
// Embed ProtoValues into sampling functions, trial moves or updateable
// observables and keep the pair in sync through the commit/rollback
// methods.
type ProtoValues struct {
	pnew []float64
	pold []float64
}

// NewProtoValues creates a proto-value pair of length nproto.
func NewProtoValues(nproto int) ProtoValues {
	return ProtoValues{
		pnew: make([]float64, nproto),
		pold: make([]float64, nproto),
	}
}

// NProto returns the number of proto-values.
func (p *ProtoValues) NProto() int { return len(p.pnew) }

// ProtoNew returns the buffer holding the proto-values of the proposed
// position. Callers may write into it.
func (p *ProtoValues) ProtoNew() []float64 { return p.pnew }

// ProtoOld returns the buffer holding the proto-values of the last
// accepted position.
func (p *ProtoValues) ProtoOld() []float64 { return p.pold }

// NewToOld commits the proposal, copying new proto-values over old.
func (p *ProtoValues) NewToOld() {
	copy(p.pold, p.pnew)
}

// OldToNew rolls the proposal back, copying old proto-values over new.
func (p *ProtoValues) OldToNew() {
	copy(p.pnew, p.pold)
}

// InitProtoValues evaluates f at x into both buffers, establishing the
// invariant new == old == f(x). Called once at the start of sampling.
func (p *ProtoValues) InitProtoValues(f func(x, protov []float64), x []float64) {
	f(x, p.pold)
	copy(p.pnew, p.pold)
}
