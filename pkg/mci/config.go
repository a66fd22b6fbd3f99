// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// runValidate is the validator instance for run configurations.
var runValidate = validator.New()

// RunConfig describes a complete integration run: the engine knobs, the
// domain, the trial move, the integrand selection and the output sinks.
// It can be loaded from a YAML file with environment overrides.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type RunConfig struct {
	// NDim is the walker dimension.
	NDim int `yaml:"ndim" validate:"required,min=1"`

	// Seed seeds the engine RNG; 0 selects a random seed.
	Seed uint64 `yaml:"seed"`

	// Nmc is the number of sampling steps.
	Nmc int64 `yaml:"nmc" validate:"min=0"`

	// TargetAcceptanceRate is the step-size tuning target.
	TargetAcceptanceRate float64 `yaml:"target_acceptance_rate" validate:"gt=0,lt=1"`

	// NFindMRT2Iterations controls tuning: positive is an exact
	// iteration count, negative tunes automatically with |n| as cap.
	NFindMRT2Iterations int `yaml:"n_find_mrt2_iterations"`

	// NDecorrelationSteps controls burn-in with the same sign
	// convention.
	NDecorrelationSteps int64 `yaml:"n_decorrelation_steps"`

	// TuneSteps and Decorrelate enable the respective Integrate phases.
	TuneSteps   bool `yaml:"tune_steps"`
	Decorrelate bool `yaml:"decorrelate"`

	// InitialStep is the starting step size of the trial move.
	InitialStep float64 `yaml:"initial_step" validate:"gt=0"`

	Domain DomainConfig `yaml:"domain"`
	Move   MoveConfig   `yaml:"move"`

	// PDF selects a built-in sampling density; empty means uniform
	// sampling over the (finite) domain.
	PDF string `yaml:"pdf" validate:"omitempty,oneof=gauss exp"`

	// Observable selects a built-in observable.
	Observable string `yaml:"observable" validate:"oneof=x x2 xsquared sum const"`

	// ConstValue is the value of the const observable.
	ConstValue float64 `yaml:"const_value"`

	// NBlocks selects error estimation: 0 none, 1 uncorrelated, >1
	// fixed-block.
	NBlocks int `yaml:"nblocks" validate:"min=0"`

	// NSkip is the observable evaluation stride.
	NSkip int `yaml:"nskip" validate:"min=1"`

	// Correlated switches to Flyvbjerg-Petersen error estimation.
	Correlated bool `yaml:"correlated"`

	// NeedsEquilibration opts the observable into automatic burn-in.
	NeedsEquilibration bool `yaml:"needs_equilibration"`

	// WalkerFile/ObsFile enable the per-step dump sinks.
	WalkerFile DumpConfig `yaml:"walker_file"`
	ObsFile    DumpConfig `yaml:"obs_file"`

	// LogLevel is the engine log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DomainConfig selects the integration domain.
type DomainConfig struct {
	// Kind is "unbounded" or "orthoperiodic".
	Kind string `yaml:"kind" validate:"oneof=unbounded orthoperiodic"`

	// Lo and Hi are the per-dimension bounds of the periodic box. A
	// single entry is broadcast to every dimension.
	Lo []float64 `yaml:"lo"`
	Hi []float64 `yaml:"hi"`
}

// MoveConfig selects the trial move.
type MoveConfig struct {
	// Kind is "uniform-all", "uniform-vec", "gauss-all" or "gauss-vec".
	Kind string `yaml:"kind" validate:"oneof=uniform-all uniform-vec gauss-all gauss-vec"`

	// Veclen is the vector length of the vec moves.
	Veclen int `yaml:"veclen" validate:"min=0"`

	// TypeEnds partitions the dimensions (or vectors) into step-size
	// groups; empty means one shared step size.
	TypeEnds []int `yaml:"type_ends"`
}

// DumpConfig configures one per-step output sink.
type DumpConfig struct {
	Path string `yaml:"path"`
	Freq int64  `yaml:"freq" validate:"min=0"`
}

// DefaultRunConfig returns the default configuration: a 3-dimensional
// gaussian density with the x^2 observable and correlated errors.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NDim:                 3,
		Seed:                 0,
		Nmc:                  1 << 20,
		TargetAcceptanceRate: 0.5,
		NFindMRT2Iterations:  -50,
		NDecorrelationSteps:  -10000,
		TuneSteps:            true,
		Decorrelate:          true,
		InitialStep:          1.0,
		Domain:               DomainConfig{Kind: "unbounded"},
		Move:                 MoveConfig{Kind: "uniform-all"},
		PDF:                  "gauss",
		Observable:           "x2",
		NBlocks:              1,
		NSkip:                1,
		Correlated:           true,
		LogLevel:             "info",
	}
}

// LoadRunConfig loads a configuration with priority env > file >
// defaults. An empty path skips the file layer; a missing file is not
// an error.
func LoadRunConfig(path string) (RunConfig, error) {
	config := DefaultRunConfig()

	if path != "" {
		if err := loadRunConfigFile(path, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadRunConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func loadRunConfigFile(path string, config *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, config)
}

func loadRunConfigFromEnv(config *RunConfig) {
	if v := os.Getenv("MCI_NDIM"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.NDim = i
		}
	}
	if v := os.Getenv("MCI_SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Seed = u
		}
	}
	if v := os.Getenv("MCI_NMC"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Nmc = i
		}
	}
	if v := os.Getenv("MCI_TARGET_ACCEPTANCE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.TargetAcceptanceRate = f
		}
	}
	if v := os.Getenv("MCI_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}

// Validate checks the configuration, including the cross-field rules
// the struct tags cannot express.
func (c RunConfig) Validate() error {
	if err := runValidate.Struct(c); err != nil {
		return err
	}
	if c.Domain.Kind == "orthoperiodic" {
		if len(c.Domain.Lo) == 0 || len(c.Domain.Hi) == 0 {
			return fmt.Errorf("%w: orthoperiodic domain requires lo and hi bounds", ErrInvalidParameter)
		}
	}
	if c.PDF == "" && c.Domain.Kind != "orthoperiodic" {
		return fmt.Errorf("%w: uniform sampling requires a finite domain", ErrInvalidParameter)
	}
	if c.NeedsEquilibration && c.NBlocks == 0 {
		return fmt.Errorf("%w: automatic equilibration requires error estimation (nblocks > 0)", ErrInvalidParameter)
	}
	return nil
}

// Build assembles a ready-to-run engine from the configuration.
func (c RunConfig) Build(opts ...Option) (*MCI, error) {
	if c.Seed != 0 {
		opts = append([]Option{WithSeed(c.Seed)}, opts...)
	}
	m := New(c.NDim, opts...)

	m.SetNFindMRT2Iterations(c.NFindMRT2Iterations)
	m.SetNDecorrelationSteps(c.NDecorrelationSteps)
	if err := m.SetTargetAcceptanceRate(c.TargetAcceptanceRate); err != nil {
		return nil, err
	}

	if c.Domain.Kind == "orthoperiodic" {
		lo, hi, err := c.Domain.bounds(c.NDim)
		if err != nil {
			return nil, err
		}
		if err := m.SetIRangeBounds(lo, hi); err != nil {
			return nil, err
		}
	}

	tmove, err := c.Move.build(c.NDim)
	if err != nil {
		return nil, err
	}
	if _, err := m.SetTrialMove(tmove); err != nil {
		return nil, err
	}
	m.SetMRT2Step(c.InitialStep)

	switch c.PDF {
	case "gauss":
		if err := m.AddSamplingFunction(NewGaussPDF(c.NDim)); err != nil {
			return nil, err
		}
	case "exp":
		if err := m.AddSamplingFunction(NewExpPDF(c.NDim)); err != nil {
			return nil, err
		}
	}

	var obs ObservableFunction
	switch c.Observable {
	case "x":
		obs = NewXObs(c.NDim)
	case "x2":
		obs = NewX2Obs(c.NDim)
	case "xsquared":
		obs = NewXSquaredObs(c.NDim)
	case "sum":
		obs = NewSumObs(c.NDim)
	case "const":
		obs = NewConstObs(c.NDim, c.ConstValue)
	}
	if err := m.AddObservable(obs, c.NBlocks, c.NSkip, c.NeedsEquilibration, c.Correlated); err != nil {
		return nil, err
	}

	if c.WalkerFile.Path != "" {
		m.StoreWalkerPositionsOnFile(c.WalkerFile.Path, c.WalkerFile.Freq)
	}
	if c.ObsFile.Path != "" {
		m.StoreObservablesOnFile(c.ObsFile.Path, c.ObsFile.Freq)
	}

	return m, nil
}

// bounds expands the configured bounds to per-dimension slices; single
// entries are broadcast.
func (d DomainConfig) bounds(ndim int) (lo, hi []float64, err error) {
	expand := func(in []float64) ([]float64, error) {
		switch len(in) {
		case 1:
			out := make([]float64, ndim)
			for i := range out {
				out[i] = in[0]
			}
			return out, nil
		case ndim:
			return in, nil
		default:
			return nil, fmt.Errorf("%w: %d bounds for %d dimensions", ErrDimMismatch, len(in), ndim)
		}
	}
	if lo, err = expand(d.Lo); err != nil {
		return nil, nil, err
	}
	if hi, err = expand(d.Hi); err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

func (mc MoveConfig) build(ndim int) (TrialMove, error) {
	switch mc.Kind {
	case "uniform-vec":
		return NewUniformVecMove(ndim, mc.Veclen, mc.TypeEnds)
	case "gauss-all":
		return NewGaussianAllMove(ndim, mc.TypeEnds), nil
	case "gauss-vec":
		return NewGaussianVecMove(ndim, mc.Veclen, mc.TypeEnds)
	default:
		return NewUniformAllMove(ndim, mc.TypeEnds), nil
	}
}
