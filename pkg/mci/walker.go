// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

// WalkerState holds the position state of the random walker during
// sampling.
//
// XOld always reflects the last accepted position, XNew the currently
// proposed one. ChangedIdx lists which coordinates of XNew differ from
// XOld; only its first NChanged entries are meaningful. Accepted is set
// by the acceptance test of the current step.
//
// At a quiescent point (after Init or after a committed step followed by
// a fresh proposal being overwritten) XNew equals XOld componentwise.
//
// Thread Safety: Not safe for concurrent use. A WalkerState is owned
// exclusively by one engine.
type WalkerState struct {
	XOld []float64 // last accepted position
	XNew []float64 // proposed position
	// ChangedIdx holds the indices of coordinates where XNew differs
	// from XOld. Only ChangedIdx[:NChanged] is meaningful.
	ChangedIdx []int
	NChanged   int
	Accepted   bool
}

// NewWalkerState creates a walker state of the given dimension, with
// both position buffers zeroed.
func NewWalkerState(ndim int) *WalkerState {
	return &WalkerState{
		XOld:       make([]float64, ndim),
		XNew:       make([]float64, ndim),
		ChangedIdx: make([]int, ndim),
	}
}

// NDim returns the walker dimension.
func (w *WalkerState) NDim() int { return len(w.XOld) }

// Init brings the walker to the canonical quiescent state: XNew is set
// to XOld, no coordinates are marked changed and the acceptance flag is
// cleared. Called once at the start of every sampling run.
func (w *WalkerState) Init() {
	copy(w.XNew, w.XOld)
	w.NChanged = 0
	w.Accepted = false
}

// NewToOld commits the proposed position: XOld takes the value of XNew.
// NChanged and ChangedIdx are left untouched so that accumulators can
// still see which coordinates the committed step changed.
func (w *WalkerState) NewToOld() {
	copy(w.XOld, w.XNew)
}

// OldToNew rolls the proposal back: XNew takes the value of XOld and no
// coordinate differs anymore, so NChanged is zeroed.
func (w *WalkerState) OldToNew() {
	copy(w.XNew, w.XOld)
	w.NChanged = 0
}
