// SPDX-License-Identifier: MIT

// validate checks oakgate artifacts offline, without a device or a running
// daemon.
//
// Usage:
//
//	validate -f config.yaml
//	validate --pipeline graph.json
//	validate --pipeline graph.json --check-blobs
//
// Exit codes:
//   - 0: artifact is valid
//   - 1: artifact is invalid (parse or validation error)
//   - 2: usage error
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/graph"
)

var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile   string
		pipelineFile string
		checkBlobs   bool
		showVersion  bool
	)
	fs.StringVar(&configFile, "file", "", "path to YAML configuration file")
	fs.StringVar(&configFile, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&pipelineFile, "pipeline", "", "path to a serialized pipeline graph (JSON)")
	fs.BoolVar(&checkBlobs, "check-blobs", false, "verify model blob files exist on disk when validating a pipeline")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, Version)
		return 0
	}

	if configFile == "" && pipelineFile == "" {
		fmt.Fprintln(stderr, "Error: --file or --pipeline is required")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  validate -f config.yaml")
		fmt.Fprintln(stderr, "  validate --pipeline graph.json")
		return 2
	}

	if configFile != "" {
		if code := validateConfig(configFile, stdout, stderr); code != 0 {
			return code
		}
	}
	if pipelineFile != "" {
		if code := validatePipeline(pipelineFile, checkBlobs, stdout, stderr); code != 0 {
			return code
		}
	}
	return 0
}

func validateConfig(file string, stdout, stderr io.Writer) int {
	// Load applies strict YAML parsing and runs semantic validation.
	loader := config.NewLoader(file, Version)
	if _, err := loader.Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n", file)
		fmt.Fprintf(stderr, "  %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s is valid\n", file)
	return 0
}

func validatePipeline(file string, checkBlobs bool, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(file) // #nosec G304 -- CLI flag, user-chosen path
	if err != nil {
		fmt.Fprintf(stderr, "Pipeline error in %s:\n", file)
		fmt.Fprintf(stderr, "  %v\n", err)
		return 1
	}

	p, err := graph.Parse(data)
	if err != nil {
		fmt.Fprintf(stderr, "Pipeline error in %s:\n", file)
		fmt.Fprintf(stderr, "  %v\n", err)
		return 1
	}

	err = p.ValidateWith(graph.ValidateOptions{SkipBlobCheck: !checkBlobs})
	if err != nil {
		fmt.Fprintf(stderr, "Validation error in %s:\n", file)
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			for _, problem := range verr.Problems {
				fmt.Fprintf(stderr, "  - %s\n", problem)
			}
		} else {
			fmt.Fprintf(stderr, "  %v\n", err)
		}
		return 1
	}

	names := make([]string, 0, len(p.Streams()))
	for _, s := range p.Streams() {
		names = append(names, s.Name)
	}
	fmt.Fprintf(stdout, "✓ %s is valid (%d nodes, streams: %s)\n",
		file, p.NodeCount(), strings.Join(names, ", "))
	return 0
}
