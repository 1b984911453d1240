// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
	"kanso/internal/verify"
)

func main() {
	stepBudget := flag.Int("budget", 10000, "maximum bytecode steps per procedure before reporting Indeterminate")
	recursionBudget := flag.Int("recursion-budget", 64, "maximum nominal unfolding depth before reporting Indeterminate")
	rewriteBudget := flag.Int("rewrite-budget", 10000, "maximum rewrite steps when normalizing each unfolded nominal type before reporting Indeterminate")
	indeterminateAsError := flag.Bool("indeterminate-as-error", false, "exit non-zero if any procedure reports Indeterminate, not just on a confirmed unverified assertion")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: kanso-verify [flags] <bytecode.json> [procedure...]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	path := flag.Arg(0)
	reader, err := bytecode.NewJSONReader(path)
	if err != nil {
		color.Red("failed to read %s: %s", path, err)
		os.Exit(1)
	}

	names := flag.Args()[1:]
	if len(names) == 0 {
		names = reader.Names()
	}

	g := termgraph.New()
	ns := namespace.New()
	env := subtype.Env{RecursionBudget: *recursionBudget, RewriteBudget: *rewriteBudget}

	sawUnverified := false
	sawIndeterminate := false
	for _, name := range names {
		proc, err := reader.ReadProcedure(name)
		if err != nil {
			color.Red("%s: %s", name, err)
			sawUnverified = true
			continue
		}

		v := verify.New(g, ns, env, *stepBudget)
		diags := v.VerifyCase(proc)
		if len(diags) == 0 {
			color.Green("✅ %s verified", name)
			continue
		}

		for _, d := range diags {
			color.Red("❌ %s: %s", name, d.Message)
			if d.Code == kerrors.ErrorIndeterminate {
				sawIndeterminate = true
			} else {
				sawUnverified = true
			}
		}
	}

	if sawUnverified || (sawIndeterminate && *indeterminateAsError) {
		os.Exit(1)
	}
}
