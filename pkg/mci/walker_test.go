// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "testing"

func TestWalkerState_Init(t *testing.T) {
	w := NewWalkerState(3)
	w.XOld[0], w.XOld[1], w.XOld[2] = 1, 2, 3
	w.NChanged = 2
	w.Accepted = true

	w.Init()

	for i := range w.XNew {
		if w.XNew[i] != w.XOld[i] {
			t.Errorf("XNew[%d] = %v, want %v", i, w.XNew[i], w.XOld[i])
		}
	}
	if w.NChanged != 0 {
		t.Errorf("NChanged = %d, want 0", w.NChanged)
	}
	if w.Accepted {
		t.Error("Accepted should be false after Init")
	}
}

func TestWalkerState_CommitRollback(t *testing.T) {
	w := NewWalkerState(2)
	w.XOld[0], w.XOld[1] = 1, 1
	w.Init()

	// propose
	w.XNew[0] = 5
	w.ChangedIdx[0] = 0
	w.NChanged = 1

	// commit keeps the change-set for the accumulators
	w.NewToOld()
	if w.XOld[0] != 5 {
		t.Errorf("XOld[0] = %v after commit, want 5", w.XOld[0])
	}
	if w.NChanged != 1 {
		t.Errorf("NChanged = %d after commit, want 1", w.NChanged)
	}

	// propose again, roll back
	w.XNew[1] = 7
	w.ChangedIdx[0] = 1
	w.NChanged = 1
	w.OldToNew()
	if w.XNew[1] != 1 {
		t.Errorf("XNew[1] = %v after rollback, want 1", w.XNew[1])
	}
	if w.NChanged != 0 {
		t.Errorf("NChanged = %d after rollback, want 0", w.NChanged)
	}
}

func TestProtoValues_RoundTrip(t *testing.T) {
	p := NewProtoValues(3)
	copy(p.ProtoNew(), []float64{1, 2, 3})
	copy(p.ProtoOld(), []float64{1, 2, 3})

	// newToOld then oldToNew is the identity
	p.ProtoNew()[1] = 9
	p.NewToOld()
	p.OldToNew()
	want := []float64{1, 9, 3}
	for i := range want {
		if p.ProtoNew()[i] != want[i] || p.ProtoOld()[i] != want[i] {
			t.Fatalf("round trip broke proto pair at %d: new=%v old=%v", i, p.ProtoNew(), p.ProtoOld())
		}
	}
}

func TestProtoValues_Init(t *testing.T) {
	p := NewProtoValues(2)
	f := func(x, protov []float64) {
		protov[0] = x[0] * 2
		protov[1] = x[0] * 3
	}
	p.InitProtoValues(f, []float64{2})
	if p.ProtoOld()[0] != 4 || p.ProtoOld()[1] != 6 {
		t.Errorf("ProtoOld = %v, want [4 6]", p.ProtoOld())
	}
	if p.ProtoNew()[0] != 4 || p.ProtoNew()[1] != 6 {
		t.Errorf("ProtoNew = %v, want [4 6]", p.ProtoNew())
	}
}
