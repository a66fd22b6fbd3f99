// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "errors"

// Sentinel errors for the engine. Parameter and structural errors surface
// immediately to the caller and leave the engine state unchanged. Numeric
// convergence failures are logged as warnings instead and never returned
// as errors. Nothing is raised from inside the sampling hot loop; all
// hot-loop preconditions are checked once at allocation.
var (
	// ErrDimMismatch indicates a registered component's dimension does not
	// match the engine's dimension. Raised at registration time.
	ErrDimMismatch = errors.New("mci: dimension mismatch")

	// ErrInfiniteDomain indicates Integrate was called on an infinite
	// domain without any sampling function registered.
	ErrInfiniteDomain = errors.New("mci: integrating over an infinite domain requires a sampling function")

	// ErrAccumulatorState indicates an accumulator operation was invoked
	// outside its lifecycle contract, e.g. an estimator called before
	// finalize.
	ErrAccumulatorState = errors.New("mci: accumulator used outside its lifecycle")

	// ErrInvalidParameter indicates an invalid parameter combination,
	// e.g. automatic equilibration requested together with the no-op
	// estimator.
	ErrInvalidParameter = errors.New("mci: invalid parameter")
)
