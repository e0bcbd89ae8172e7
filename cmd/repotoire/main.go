// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the repotoire CLI for running static analysis
// against a repository checkout.
//
// Usage:
//
//	repotoire run [path]          Analyze a repository
//	repotoire run --since <ref>   Analyze only files changed since a commit
//	repotoire run --json          Emit findings as JSON
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `repotoire - static analysis CLI

Usage:
  repotoire <command> [options]

Commands:
  run    Analyze a repository and report findings

Global Options:
  --version   Show version and exit

Examples:
  repotoire run
  repotoire run --since HEAD~5
  repotoire run --json ./path/to/repo

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("repotoire version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "run":
		runAnalyze(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
