// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

// ObservableFunction maps a walker position to a vector of observable
// values. The engine averages these values over the sampled positions to
// form the integral estimate.
type ObservableFunction interface {
	// NDim returns the input dimension.
	NDim() int

	// NObs returns the number of values the observable produces.
	NObs() int

	// Evaluate computes the observable at x into out (length NObs).
	Evaluate(x []float64, out []float64)

	// Duplicate returns an independent copy of the observable.
	Duplicate() ObservableFunction
}

// UpdateableObservable is an ObservableFunction that can refresh only the
// output components affected by a partial position change. Accumulators
// use this path when some, but fewer than all, coordinates changed since
// the observable was last evaluated.
type UpdateableObservable interface {
	ObservableFunction

	// EvaluateUpdated recomputes only the components of out affected by
	// the changed coordinates. changedFlags has length NDim and marks
	// every coordinate changed since the last full or updated evaluation;
	// nchanged counts the marked entries. out holds the previous values
	// on entry and must hold the refreshed values on return.
	EvaluateUpdated(x []float64, nchanged int, changedFlags []bool, out []float64)
}

// DensityDependentObservable marks observables whose value depends on the
// current sampling density in addition to the position. The engine keeps
// the density components' proto-values fresh on the steps where such an
// observable is evaluated.
type DensityDependentObservable interface {
	ObservableFunction

	// UsesPDF reports whether the observable reads sampling-function
	// state during evaluation.
	UsesPDF() bool
}
