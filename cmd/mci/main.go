// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mci runs a Monte Carlo integration described by a YAML
// configuration file.
//
// Usage:
//
//	mci run --config run.yaml
//	mci run --config run.yaml --seed 1337 --nmc 1048576
//	mci run --config run.yaml --metrics-listen :9090
//	mci run --config run.yaml --ranks 8
//	mci version
//
// A minimal configuration:
//
//	ndim: 3
//	nmc: 1048576
//	pdf: gauss
//	observable: x2
//	correlated: true
//
// The run prints one "avg +/- err" line per observable dimension on
// stdout; progress and warnings go to stderr through structured logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mci",
		Short:         "Monte Carlo integration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}
