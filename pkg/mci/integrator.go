// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mci implements a Monte Carlo integration engine.
//
// The engine estimates multidimensional integrals of the form
//
//	I = integral over D of g(x) p(x) dx
//
// using a Metropolis random walk driven by a user-supplied sampling
// density p, or plain uniform sampling over a finite domain when no
// density is registered. Observables g are accumulated during the walk
// and reduced to averages with statistical error estimates.
//
// A typical integration:
//
//	m := mci.New(3, mci.WithSeed(5331))
//	_ = m.AddSamplingFunction(mci.NewGaussPDF(3))
//	_ = m.AddObservable(mci.NewX2Obs(3), 1, 1, false, true)
//	avg := make([]float64, m.NObsDim())
//	errs := make([]float64, m.NObsDim())
//	err := m.Integrate(1<<20, avg, errs, true, true)
//
// Thread Safety: An engine is single-threaded; one Integrate call owns
// the RNG, walker state, proto-value buffers and accumulator buffers
// exclusively. Run independent engines for parallelism (see RunParallel).
package mci

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
)

// AcceptanceCallback is invoked on every sampling step, after the
// acceptance decision and before commit/rollback. It must not mutate
// walker state and must not block.
type AcceptanceCallback func(m *MCI)

// MCI is the Monte Carlo integrator.
//
// A fresh engine has no sampling density and an unbounded domain, so
// Integrate fails with ErrInfiniteDomain until a density or a finite
// domain is installed. It starts with a uniform all-dimension trial
// move, a target acceptance rate of 0.5 and automatic step-size tuning
// and burn-in. Components are registered
// through the setters; setters consume the new component and return the
// displaced one, transferring exclusive ownership.
type MCI struct {
	ndim  int
	runID string

	rgen      *rand.Rand
	wlk       *WalkerState
	domain    Domain
	trialMove TrialMove
	pdfcont   samplingFunctionContainer
	obscont   ObservableContainer

	targetAccRate       float64
	nFindMRT2Iterations int
	nDecorrelationSteps int64

	acc  int64
	rej  int64
	ridx int64

	cback  AcceptanceCallback
	logger *slog.Logger

	wlkDump *dumpSink
	obsDump *dumpSink
}

// Option configures an engine at construction time.
type Option func(*MCI)

// WithSeed seeds the engine's random generator deterministically.
func WithSeed(seed uint64) Option {
	return func(m *MCI) { m.seed(seed) }
}

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MCI) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAcceptanceCallback registers the on-acceptance callback.
func WithAcceptanceCallback(cb AcceptanceCallback) Option {
	return func(m *MCI) { m.cback = cb }
}

// New creates an engine for ndim-dimensional integrands.
func New(ndim int, opts ...Option) *MCI {
	m := &MCI{
		ndim:                ndim,
		runID:               uuid.NewString(),
		wlk:                 NewWalkerState(ndim),
		domain:              NewUnboundDomain(ndim),
		targetAccRate:       0.5,
		nFindMRT2Iterations: -50,
		nDecorrelationSteps: -10000,
		logger:              slog.Default(),
	}
	m.seed(rand.Uint64())
	m.trialMove = NewUniformAllMove(ndim, nil)
	m.trialMove.BindRGen(m.rgen)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MCI) seed(seed uint64) {
	m.rgen = rand.New(rand.NewPCG(seed, seed))
	if m.trialMove != nil {
		m.trialMove.BindRGen(m.rgen)
	}
}

// =============================================================================
// Getters
// =============================================================================

// NDim returns the engine dimension.
func (m *MCI) NDim() int { return m.ndim }

// RunID returns the engine's unique run identifier, stamped into logs
// and dump-file headers.
func (m *MCI) RunID() string { return m.runID }

// NObsDim returns the total observable dimension of all registered
// observables.
func (m *MCI) NObsDim() int { return m.obscont.NObsDim() }

// NObs returns the number of registered observables.
func (m *MCI) NObs() int { return m.obscont.NObs() }

// Domain returns the current domain (still owned by the engine).
func (m *MCI) Domain() Domain { return m.domain }

// TrialMove returns the current trial move (still owned by the engine).
func (m *MCI) TrialMove() TrialMove { return m.trialMove }

// HasPDF reports whether any sampling function is registered.
func (m *MCI) HasPDF() bool { return m.pdfcont.hasPDF() }

// X returns coordinate i of the last accepted walker position.
func (m *MCI) X(i int) float64 { return m.wlk.XOld[i] }

// Accepted reports the acceptance decision of the current step; meant
// for use inside the acceptance callback.
func (m *MCI) Accepted() bool { return m.wlk.Accepted }

// RunningIndex returns the index of the current sampling step.
func (m *MCI) RunningIndex() int64 { return m.ridx }

// AcceptanceRate returns acc/(acc+rej) of the current or last sampling
// run, or 0 before any step was accepted.
func (m *MCI) AcceptanceRate() float64 {
	if m.acc > 0 {
		return float64(m.acc) / float64(m.acc+m.rej)
	}
	return 0
}

// =============================================================================
// Setters
// =============================================================================

// SetSeed re-seeds the engine's random generator.
func (m *MCI) SetSeed(seed uint64) { m.seed(seed) }

// SetTargetAcceptanceRate sets the step-size tuning target.
func (m *MCI) SetTargetAcceptanceRate(rate float64) error {
	if rate <= 0 || rate >= 1 {
		return fmt.Errorf("%w: target acceptance rate %g outside (0,1)", ErrInvalidParameter, rate)
	}
	m.targetAccRate = rate
	return nil
}

// SetNFindMRT2Iterations sets the tuning iteration count. Positive
// values run exactly that many iterations; negative values tune
// automatically with |n| as iteration cap.
func (m *MCI) SetNFindMRT2Iterations(n int) { m.nFindMRT2Iterations = n }

// SetNDecorrelationSteps sets the burn-in length. Positive values run
// exactly that many steps; negative values equilibrate automatically
// with |n| as step cap.
func (m *MCI) SetNDecorrelationSteps(n int64) { m.nDecorrelationSteps = n }

// SetAcceptanceCallback registers the on-acceptance callback; nil
// clears it.
func (m *MCI) SetAcceptanceCallback(cb AcceptanceCallback) { m.cback = cb }

// SetDomain installs a new domain, applying it to the current walker
// position, and returns the displaced domain.
func (m *MCI) SetDomain(domain Domain) (Domain, error) {
	if domain.NDim() != m.ndim {
		return nil, fmt.Errorf("%w: domain has %d dimensions, engine has %d", ErrDimMismatch, domain.NDim(), m.ndim)
	}
	old := m.domain
	m.domain = domain
	m.domain.Apply(m.wlk.XOld)
	return old, nil
}

// ResetDomain restores the default unbounded domain and returns the
// displaced domain.
func (m *MCI) ResetDomain() Domain {
	old := m.domain
	m.domain = NewUnboundDomain(m.ndim)
	return old
}

// SetIRange installs an ortho-periodic domain with uniform bounds
// [lo, hi) in every dimension.
func (m *MCI) SetIRange(lo, hi float64) error {
	domain, err := NewOrthoPeriodicDomain(m.ndim, lo, hi)
	if err != nil {
		return err
	}
	_, err = m.SetDomain(domain)
	return err
}

// SetIRangeBounds installs an ortho-periodic domain with per-dimension
// bounds.
func (m *MCI) SetIRangeBounds(lbounds, ubounds []float64) error {
	domain, err := NewOrthoPeriodicDomainBounds(lbounds, ubounds)
	if err != nil {
		return err
	}
	_, err = m.SetDomain(domain)
	return err
}

// SetTrialMove installs a new trial move, binding the engine's random
// generator to it, and returns the displaced move.
func (m *MCI) SetTrialMove(tmove TrialMove) (TrialMove, error) {
	if tmove.NDim() != m.ndim {
		return nil, fmt.Errorf("%w: trial move has %d dimensions, engine has %d", ErrDimMismatch, tmove.NDim(), m.ndim)
	}
	old := m.trialMove
	m.trialMove = tmove
	m.trialMove.BindRGen(m.rgen)
	return old, nil
}

// AddSamplingFunction registers one component of the sampling density.
func (m *MCI) AddSamplingFunction(pdf SamplingFunction) error {
	if pdf.NDim() != m.ndim {
		return fmt.Errorf("%w: sampling function has %d dimensions, engine has %d", ErrDimMismatch, pdf.NDim(), m.ndim)
	}
	m.pdfcont.add(pdf)
	return nil
}

// ClearSamplingFunctions removes all registered density components,
// reverting the engine to uniform sampling.
func (m *MCI) ClearSamplingFunctions() { m.pdfcont.clear() }

// AddObservable registers an observable. nblocks selects the error
// estimation: 0 disables errors, 1 uses the uncorrelated estimator over
// the full history, larger values use fixed-block estimation with that
// many blocks. The correlated flag switches to Flyvbjerg-Petersen
// blocking whenever errors are enabled. The observable is evaluated on
// every nskip-th step. flagEquil opts the observable into automatic
// burn-in (requires error estimation).
func (m *MCI) AddObservable(obs ObservableFunction, nblocks, nskip int, flagEquil, correlated bool) error {
	if nblocks < 0 {
		nblocks = 0
	}
	if nskip < 1 {
		nskip = 1
	}
	estimType := SelectEstimatorType(correlated, nblocks)
	return m.AddObservableEstim(obs, estimType, nblocks, nskip, flagEquil)
}

// AddObservableEstim registers an observable with an explicit estimator
// type. nblocks is only meaningful for EstimatorFixedBlock.
func (m *MCI) AddObservableEstim(obs ObservableFunction, estimType EstimatorType, nblocks, nskip int, flagEquil bool) error {
	if obs.NDim() != m.ndim {
		return fmt.Errorf("%w: observable has %d dimensions, engine has %d", ErrDimMismatch, obs.NDim(), m.ndim)
	}
	if flagEquil && estimType == EstimatorNoop {
		return fmt.Errorf("%w: automatic equilibration requires an estimator with error calculation", ErrInvalidParameter)
	}
	if nskip < 1 {
		nskip = 1
	}
	var accu Accumulator
	switch estimType {
	case EstimatorNoop:
		accu = NewSimpleAccumulator(obs, nskip)
	case EstimatorFixedBlock:
		accu = NewBlockAccumulator(obs, nskip, nblocks)
	default: // uncorrelated and correlated estimators read the full history
		accu = NewFullAccumulator(obs, nskip)
	}
	m.obscont.AddObservable(accu, estimType, flagEquil)
	return nil
}

// PopObservable removes the most recently added observable and returns
// it to the caller.
func (m *MCI) PopObservable() ObservableFunction { return m.obscont.PopObservable() }

// SetMRT2Step sets every adjustable step size to v.
func (m *MCI) SetMRT2Step(v float64) {
	for i := 0; i < m.trialMove.NStepSizes(); i++ {
		m.trialMove.SetStepSize(i, v)
	}
}

// SetMRT2StepAt sets step size i. Out-of-range indices are logged and
// ignored.
func (m *MCI) SetMRT2StepAt(i int, v float64) {
	if i < 0 || i >= m.trialMove.NStepSizes() {
		m.logger.Warn("tried to set non-existing MRT2 step index", "index", i)
		return
	}
	m.trialMove.SetStepSize(i, v)
}

// SetMRT2StepAll copies one value per adjustable step size from steps.
func (m *MCI) SetMRT2StepAll(steps []float64) {
	n := min(len(steps), m.trialMove.NStepSizes())
	for i := 0; i < n; i++ {
		m.trialMove.SetStepSize(i, steps[i])
	}
}

// GetMRT2Step returns step size i, or 0 for out-of-range indices.
func (m *MCI) GetMRT2Step(i int) float64 {
	if i < 0 || i >= m.trialMove.NStepSizes() {
		return 0
	}
	return m.trialMove.StepSize(i)
}

// SetX sets coordinate i of the walker position, applying the domain.
func (m *MCI) SetX(i int, v float64) error {
	if i < 0 || i >= m.ndim {
		return fmt.Errorf("%w: coordinate index %d out of range", ErrInvalidParameter, i)
	}
	m.wlk.XOld[i] = v
	m.domain.Apply(m.wlk.XOld)
	return nil
}

// SetXAll sets the full walker position, applying the domain.
func (m *MCI) SetXAll(x []float64) error {
	if len(x) != m.ndim {
		return fmt.Errorf("%w: position has %d coordinates, engine has %d", ErrDimMismatch, len(x), m.ndim)
	}
	copy(m.wlk.XOld, x)
	m.domain.Apply(m.wlk.XOld)
	return nil
}

// MoveX applies the trial move to the stored walker position once,
// outside of any sampling run.
func (m *MCI) MoveX() {
	m.wlk.OldToNew()
	m.trialMove.ComputeTrialMove(m.wlk)
	m.domain.ApplyWalker(m.wlk)
	m.wlk.NewToOld()
	m.wlk.OldToNew()
}

// NewRandomX draws a fresh uniform walker position inside the domain.
func (m *MCI) NewRandomX() {
	for i := 0; i < m.ndim; i++ {
		m.wlk.XNew[i] = m.rgen.Float64()
	}
	m.domain.ScaleToDomain(m.wlk.XNew)
	m.wlk.NewToOld()
	m.wlk.OldToNew()
}

// =============================================================================
// Integration
// =============================================================================

// Integrate runs the full integration state machine: optional step-size
// tuning, optional burn-in, then nmc sampling steps with observable
// accumulation, and finally the statistical reduction into avg and errs
// (each at least NObsDim long). When sampling uniformly (no density
// registered) the results are scaled by the domain volume.
//
// All accumulator buffers are scoped to this call and released on every
// exit path.
func (m *MCI) Integrate(nmc int64, avg, errs []float64, doTuneStep, doDecorrelate bool) error {
	if !m.pdfcont.hasPDF() && !m.domain.IsFinite() {
		return ErrInfiniteDomain
	}
	if nmc < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrInvalidParameter, nmc)
	}
	if len(avg) < m.obscont.NObsDim() || len(errs) < m.obscont.NObsDim() {
		return fmt.Errorf("%w: result buffers shorter than total observable dimension %d", ErrInvalidParameter, m.obscont.NObsDim())
	}

	if m.pdfcont.hasPDF() {
		if doTuneStep {
			m.findMRT2Step()
		}
		if doDecorrelate {
			if err := m.initialDecorrelation(); err != nil {
				return err
			}
		}
	}

	if nmc == 0 {
		return nil
	}

	if err := m.obscont.Allocate(nmc); err != nil {
		m.obscont.Deallocate()
		return err
	}
	defer m.obscont.Deallocate()

	m.openDumpSinks()
	defer m.closeDumpSinks()

	if err := m.sampleObs(nmc, &m.obscont, true); err != nil {
		return err
	}

	if err := m.obscont.Estimate(avg, errs); err != nil {
		return err
	}

	if !m.pdfcont.hasPDF() {
		vol := m.domain.Volume()
		for i := 0; i < m.obscont.NObsDim(); i++ {
			avg[i] *= vol
			errs[i] *= vol
		}
	}

	m.logger.Debug("integration finished",
		"run_id", m.runID, "nmc", nmc, "acceptance_rate", m.AcceptanceRate())
	return nil
}

// Sample runs npoints sampling steps without observable accumulation,
// advancing the walker. Used internally by tuning and burn-in and
// exported for callers that only want the walk.
func (m *MCI) Sample(npoints int64) {
	m.initializeSampling(nil)
	flagpdf := m.pdfcont.hasPDF()
	for m.ridx = 0; m.ridx < npoints; m.ridx++ {
		if flagpdf {
			m.doStepMRT2()
		} else {
			m.doStepRandom()
		}
	}
}

// sampleObs runs npoints sampling steps accumulating into cont, and
// finalizes it. flagMC additionally enables the file dumps.
func (m *MCI) sampleObs(npoints int64, cont *ObservableContainer, flagMC bool) error {
	m.initializeSampling(cont)
	flagCallbackPDF := cont.DependsOnPDF()
	flagpdf := m.pdfcont.hasPDF()

	for m.ridx = 0; m.ridx < npoints; m.ridx++ {
		if flagpdf {
			m.doStepMRT2()
			if nskipPDF := int64(cont.NSkipPDF()); nskipPDF != 0 {
				// keep the density proto-values fresh on the steps where a
				// density-dependent observable will be evaluated
				flagPDFObs := m.ridx%nskipPDF == 0
				if (flagCallbackPDF || m.wlk.Accepted) && flagPDFObs {
					m.pdfcont.prepareObservation(m.wlk.XNew)
					flagCallbackPDF = false
				} else if m.wlk.Accepted {
					flagCallbackPDF = true
				}
			}
		} else {
			m.doStepRandom()
		}

		cont.Accumulate(m.wlk)

		if flagMC {
			if m.obsDump != nil {
				m.storeObservables()
			}
			if m.wlkDump != nil {
				m.storeWalkerPositions()
			}
		}
	}

	return cont.Finalize()
}

// initializeSampling resets the run counters and establishes the
// proto-value invariant new == old on every carrier.
func (m *MCI) initializeSampling(cont *ObservableContainer) {
	m.acc = 0
	m.rej = 0
	m.ridx = 0

	m.wlk.Init()
	m.pdfcont.initProtoValues(m.wlk.XOld)
	m.trialMove.InitAt(m.wlk.XOld)

	if m.cback != nil {
		m.cback(m)
	}
	if cont != nil {
		cont.Reset()
	}
}

// doStepMRT2 performs one Metropolis accept/reject cycle sampling from
// the registered density.
func (m *MCI) doStepMRT2() {
	moveAcc := m.trialMove.ComputeTrialMove(m.wlk)

	if m.wlk.NChanged < m.ndim {
		m.domain.ApplyWalker(m.wlk)
	} else {
		m.domain.Apply(m.wlk.XNew)
	}

	pdfAcc := m.pdfcont.computeAcceptance(m.wlk)

	m.wlk.Accepted = m.rgen.Float64() <= pdfAcc*moveAcc
	if m.wlk.Accepted {
		m.acc++
	} else {
		m.rej++
	}

	if m.cback != nil {
		m.cback(m)
	}

	if m.wlk.Accepted {
		m.pdfcont.newToOld()
		m.trialMove.NewToOld()
		m.wlk.NewToOld()
	} else {
		m.pdfcont.oldToNew()
		m.trialMove.OldToNew()
		m.wlk.OldToNew()
	}
}

// doStepRandom performs one uniform sampling step; used when no density
// is registered. The draw is always accepted.
func (m *MCI) doStepRandom() {
	for i := 0; i < m.ndim; i++ {
		m.wlk.XNew[i] = m.rgen.Float64()
		m.wlk.ChangedIdx[i] = i
	}
	m.domain.ScaleToDomain(m.wlk.XNew)
	m.wlk.NChanged = m.ndim

	m.wlk.Accepted = true
	m.acc++

	if m.cback != nil {
		m.cback(m)
	}
	m.wlk.NewToOld()
}

// =============================================================================
// Step-size tuning
// =============================================================================

// smallestStep is the smallest admissible step size, the minimum
// positive normalized float32.
const smallestStep = 0x1p-126

// minStatSteps is the sampling chunk used by both step-size tuning and
// automatic burn-in.
func (m *MCI) minStatSteps() int64 {
	return int64(math.Max(100, math.Sqrt(40000*float64(m.ndim))))
}

// findMRT2Step tunes the trial move's step sizes toward the target
// acceptance rate. Multiple step sizes are scaled together, keeping
// their initial proportions. No-op when the move exposes no adjustable
// step sizes.
func (m *MCI) findMRT2Step() {
	if !m.trialMove.HasStepSizes() {
		return
	}

	const (
		minConsecutive = 5    // tuned iterations required before auto-stop
		tolerance      = 0.05 // admissible acceptance-rate deviation
	)
	minStat := m.minStatSteps()
	nStepSizes := m.trialMove.NStepSizes()

	dimSizes := make([]float64, m.ndim)
	m.domain.DimSizes(dimSizes)
	stepSizeIdx := make([]int, m.ndim)
	for i := 0; i < m.ndim; i++ {
		stepSizeIdx[i] = m.trialMove.StepSizeIndex(i)
	}

	consCount := 0
	counter := 0
	for (m.nFindMRT2Iterations < 0 && consCount < minConsecutive) || counter < m.nFindMRT2Iterations {
		m.Sample(minStat)
		rate := m.AcceptanceRate()

		if math.Abs(rate-m.targetAccRate) < tolerance {
			consCount++
		} else {
			consCount = 0
		}

		fact := math.Min(2, math.Max(0.5, rate/m.targetAccRate))
		m.trialMove.ScaleStepSizes(fact)

		// keep large step sizes in check
		for i := 0; i < m.ndim; i++ {
			if m.trialMove.StepSize(stepSizeIdx[i]) > 0.5*dimSizes[i] {
				m.trialMove.SetStepSize(stepSizeIdx[i], 0.5*dimSizes[i])
			}
		}
		// keep small step sizes in check
		for j := 0; j < nStepSizes; j++ {
			if m.trialMove.StepSize(j) < smallestStep {
				m.trialMove.SetStepSize(j, smallestStep)
			}
		}

		m.logger.Debug("step-size tuning iteration",
			"iteration", counter, "acceptance_rate", rate, "scale_factor", fact)

		counter++
		if m.nFindMRT2Iterations < 0 && counter >= -m.nFindMRT2Iterations {
			break
		}
	}
}

// =============================================================================
// Burn-in
// =============================================================================

// initialDecorrelation removes the dependence on the initial walker
// position. A positive step count samples exactly that many steps; a
// negative one equilibrates automatically by comparing consecutive
// estimates of the opted-in observables, with |n| as step cap.
func (m *MCI) initialDecorrelation() error {
	if m.nDecorrelationSteps > 0 {
		m.Sample(m.nDecorrelationSteps)
		return nil
	}
	if m.nDecorrelationSteps == 0 {
		return nil
	}

	// clone every observable that opted in, using the correlated
	// estimator for trustworthy errors on short runs
	var equil ObservableContainer
	for i := 0; i < m.obscont.NObs(); i++ {
		if m.obscont.FlagEquil(i) {
			obs := m.obscont.ObservableFunction(i).Duplicate()
			equil.AddObservable(NewFullAccumulator(obs, 1), EstimatorCorrelated, true)
		}
	}
	if equil.NObs() == 0 {
		return nil
	}

	nobsdim := equil.NObsDim()
	minNMC := m.minStatSteps()

	if err := equil.Allocate(minNMC); err != nil {
		return err
	}
	defer equil.Deallocate()

	oldAvg := make([]float64, nobsdim)
	oldErr := make([]float64, nobsdim)
	newAvg := make([]float64, nobsdim)
	newErr := make([]float64, nobsdim)

	if err := m.sampleObs(minNMC, &equil, false); err != nil {
		return err
	}
	if err := equil.Estimate(oldAvg, oldErr); err != nil {
		return err
	}

	var countNMC int64
	for {
		if err := m.sampleObs(minNMC, &equil, false); err != nil {
			return err
		}
		countNMC += minNMC

		if countNMC >= -m.nDecorrelationSteps {
			m.logger.Warn("max number of MC steps reached without equilibration",
				"run_id", m.runID, "steps", countNMC)
			break
		}

		if err := equil.Estimate(newAvg, newErr); err != nil {
			return err
		}

		stable := true
		for i := 0; i < nobsdim; i++ {
			if math.Abs(oldAvg[i]-newAvg[i]) > 2*math.Sqrt(oldErr[i]*oldErr[i]+newErr[i]*newErr[i]) {
				stable = false
				break
			}
		}
		copy(oldAvg, newAvg)
		copy(oldErr, newErr)
		if stable {
			break
		}
	}
	return nil
}
