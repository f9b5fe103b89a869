// Command graphdraw-sim replays a load scenario of concurrent editors
// against a running graphdraw-d and checks the scenario invariants.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/linem-davton/graphdraw/pkg/client"
	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/simulation"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("graphdraw-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioFile := fs.String("scenario", "", "path to a YAML or JSON scenario file")
	apiURL := fs.String("api", config.EnvOrDefault("API", client.DefaultEndpoint), "base URL of graphdraw-d")
	jsonOutput := fs.Bool("json", false, "output results as JSON")
	outputFile := fs.String("out", "", "write output to file instead of stdout")
	wait := fs.Int("wait", 5, "health probes before giving up on the daemon")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := logging.New(stderr, logging.ConfigFromEnv())

	scenario := simulation.DefaultScenario()
	if *scenarioFile != "" {
		s, err := simulation.LoadScenario(*scenarioFile)
		if err != nil {
			fmt.Fprintf(stderr, "graphdraw-sim: %v\n", err)
			return 1
		}
		scenario = s
	} else {
		logger.Info("No scenario file provided, running default scenario")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := client.NewClient(*apiURL).WaitReady(readyCtx, client.DefaultBackoff(), *wait)
	cancel()
	if err != nil {
		fmt.Fprintf(stderr, "graphdraw-sim: daemon at %s not ready: %v\n", *apiURL, err)
		return 1
	}

	result := simulation.RunScenario(ctx, scenario, *apiURL, logger)

	output, err := formatReport(result, *jsonOutput)
	if err != nil {
		fmt.Fprintf(stderr, "graphdraw-sim: %v\n", err)
		return 1
	}
	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0o644); err != nil {
			fmt.Fprintf(stderr, "graphdraw-sim: write report to %s: %v\n", *outputFile, err)
			return 1
		}
		logger.Info("Report written", "path", *outputFile)
	} else {
		stdout.Write(output)
	}

	if !result.Success {
		return 1
	}
	return 0
}

func formatReport(res simulation.SimulationResult, jsonFmt bool) ([]byte, error) {
	if jsonFmt {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		return append(data, '\n'), nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n--- Simulation Report: %s ---\n", res.ScenarioName)
	fmt.Fprintf(&buf, "Duration: %s\n", res.Duration)
	fmt.Fprintf(&buf, "Requests: %d | Succeeded: %d | Rejected: %d | Errors: %d\n",
		res.TotalRequests, res.TotalSucceeded, res.TotalRejected, res.TotalErrors)

	if len(res.Actions) > 0 {
		actions := make([]string, 0, len(res.Actions))
		for a := range res.Actions {
			actions = append(actions, string(a))
		}
		sort.Strings(actions)
		buf.WriteString("\nActions:\n")
		for _, a := range actions {
			fmt.Fprintf(&buf, "  %-12s %d\n", a, res.Actions[simulation.Action(a)])
		}
	}

	if len(res.Invariants) > 0 {
		buf.WriteString("\nInvariants:\n")
		for _, inv := range res.Invariants {
			status := "FAIL"
			if inv.Passed {
				status = "PASS"
			}
			fmt.Fprintf(&buf, "[%s] %s (%s): Expected %s, Got %s\n", status, inv.Metric, inv.Scope, inv.Expected, inv.Actual)
		}
	}
	return buf.Bytes(), nil
}
