// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcigo/pkg/logging"
	"github.com/AleutianAI/mcigo/pkg/mci"
)

type runFlags struct {
	configPath    string
	seed          uint64
	nmc           int64
	ranks         int
	metricsListen string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an integration described by a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegration(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML run configuration")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "Override the RNG seed")
	cmd.Flags().Int64Var(&flags.nmc, "nmc", 0, "Override the number of sampling steps")
	cmd.Flags().IntVar(&flags.ranks, "ranks", 1, "Number of independent engines to run and reduce")
	cmd.Flags().StringVar(&flags.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runIntegration(flags *runFlags) error {
	config, err := mci.LoadRunConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.seed != 0 {
		config.Seed = flags.seed
	}
	if flags.nmc != 0 {
		config.Nmc = flags.nmc
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.LogLevel),
		Service: "mci",
	})
	defer logger.Close()

	metrics := mci.NewMetrics("mci")
	if flags.metricsListen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics)
		go serveMetrics(flags.metricsListen, registry, logger)
	}

	if flags.ranks > 1 {
		return runParallel(flags, config, logger)
	}

	opts := []mci.Option{mci.WithLogger(logger.Slog())}
	if flags.metricsListen != "" {
		opts = append(opts, mci.WithAcceptanceCallback(metrics.OnStep))
	}
	m, err := config.Build(opts...)
	if err != nil {
		return err
	}

	logger.Info("integration started",
		"run_id", m.RunID(), "ndim", m.NDim(), "nmc", config.Nmc,
		"pdf", config.PDF, "observable", config.Observable)

	avg := make([]float64, m.NObsDim())
	errs := make([]float64, m.NObsDim())
	start := time.Now()
	if err := m.Integrate(config.Nmc, avg, errs, config.TuneSteps, config.Decorrelate); err != nil {
		return err
	}

	logger.Info("integration finished",
		"run_id", m.RunID(), "elapsed", time.Since(start),
		"acceptance_rate", m.AcceptanceRate())
	printResults(avg, errs)
	return nil
}

func runParallel(flags *runFlags, config mci.RunConfig, logger *logging.Logger) error {
	logger.Info("parallel integration started",
		"ranks", flags.ranks, "ndim", config.NDim, "nmc", config.Nmc)

	baseSeed := config.Seed
	start := time.Now()
	avg, errs, err := mci.RunParallel(context.Background(), flags.ranks, config.Nmc,
		func(rank int) (*mci.MCI, error) {
			rankConfig := config
			if baseSeed != 0 {
				rankConfig.Seed = baseSeed + uint64(rank)
			}
			return rankConfig.Build(mci.WithLogger(logger.Slog()))
		})
	if err != nil {
		return err
	}

	logger.Info("parallel integration finished",
		"ranks", flags.ranks, "elapsed", time.Since(start))
	printResults(avg, errs)
	return nil
}

func printResults(avg, errs []float64) {
	for i := range avg {
		fmt.Printf("obs[%d] = %.10g +/- %.10g\n", i, avg[i], errs[i])
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
