package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// EnsureReady checks that e is reachable and pulls any of models it does not
// have yet, writing progress to w. Empty and repeated names are ignored.
// Failures are upstream errors, so a scheduled run retries them later.
func EnsureReady(ctx context.Context, e Engine, w io.Writer, models ...string) error {
	if !e.IsRunning(ctx) {
		return upstream(CapabilityLLM, errors.New("inference engine is not reachable; start Ollama with `ollama serve` or set llm.provider"))
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		if err := e.PullModel(ctx, model, progressPrinter(w)); err != nil {
			return upstream(CapabilityLLM, fmt.Errorf("pulling model %s: %w", model, err))
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

// progressPrinter reports pull progress in steps of 10% so long downloads
// do not flood the terminal. Status changes are always shown.
func progressPrinter(w io.Writer) func(PullProgress) {
	lastStatus, lastStep := "", -1
	return func(p PullProgress) {
		if p.Total <= 0 {
			if p.Status != lastStatus {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
			lastStatus, lastStep = p.Status, -1
			return
		}
		step := int(p.Completed * 10 / p.Total)
		if p.Status == lastStatus && step == lastStep {
			return
		}
		fmt.Fprintf(w, "  %s %d%%\n", p.Status, step*10)
		lastStatus, lastStep = p.Status, step
	}
}
