// Command main replays YAML ledger scenarios against a fresh in-memory ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"talk/internal/auth"
	"talk/internal/repository"
	"talk/internal/scenario"
	"talk/internal/service"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: scenario <script.yaml> [more.yaml ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		script, err := scenario.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		svc := service.NewLedgerService(repository.NewMemoryStore(), auth.RequireCaller)
		n, err := scenario.NewRunner(svc).Run(context.Background(), script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s (%d steps)\n", path, n)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
