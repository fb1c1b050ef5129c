// Command vex analyzes a C program's "definitely lost" heap allocations:
// it runs the program under a leak-detecting dynamic memory checker,
// traces its execution with a debugger, and reports the exact source
// line and category at which each leak becomes inevitable (spec §6
// "External interfaces").
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"

	"github.com/hooop/vex/internal/config"
	"github.com/hooop/vex/internal/debugger"
	"github.com/hooop/vex/internal/diagnosis"
	"github.com/hooop/vex/internal/engine"
	"github.com/hooop/vex/internal/llm"
	"github.com/hooop/vex/internal/render"
	"github.com/hooop/vex/internal/source"
	"github.com/hooop/vex/internal/trace"
)

// Exit codes (spec §6): 0 no leaks, 1 leaks found and reported,
// 2 analysis failure, 3 misconfiguration.
const (
	exitOK             = 0
	exitLeaksFound     = 1
	exitAnalysisFailed = 2
	exitMisconfigured  = 3
)

func main() {
	log.SetFlags(0)

	if len(os.Args) > 1 && os.Args[1] == "configure" {
		os.Exit(runConfigure())
	}

	checkerBin := flag.String("checker", "valgrind", "dynamic memory checker binary")
	debuggerBin := flag.String("debugger", "gdb", "debugger binary")
	configPath := flag.String("config", "", "path to a YAML config file")
	diagnosisCSV := flag.String("diagnosis-csv", "", "write diagnoses to this CSV file")
	rootsGraph := flag.String("roots-graph", "", "write the roots-at-leak graph to this .gv file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: vex [flags] <executable> [args...]")
		os.Exit(exitMisconfigured)
	}
	executable, targetArgs := args[0], args[1:]

	cfg := &config.Config{DebuggerPath: *debuggerBin}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(exitMisconfigured)
		}
		cfg = loaded
	}
	config.ApplyEnv(cfg)
	if cfg.DiagnosisCSV == "" {
		cfg.DiagnosisCSV = *diagnosisCSV
	}
	if cfg.RootsGraph == "" {
		cfg.RootsGraph = *rootsGraph
	}

	os.Exit(run(cfg, *checkerBin, executable, targetArgs))
}

func run(cfg *config.Config, checkerBin, executable string, targetArgs []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	report, err := runChecker(ctx, checkerBin, executable, targetArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "misconfiguration: %v\n", err)
		return exitMisconfigured
	}

	sess, err := debugger.Start(ctx, cfg.DebuggerPath, executable, targetArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "misconfiguration: %v\n", err)
		return exitMisconfigured
	}
	defer sess.Close()

	tracer := trace.NewTracer(sess, &source.Extractor{}, cfg.MaxTraceSteps)
	for _, fw := range cfg.FreeWrappers {
		tracer.FreeWrappers[fw] = true
	}

	var llmClient *llm.Client
	if cfg.LLMEndpoint != "" {
		if key, err := config.LoadCredential(); err == nil {
			llmClient = llm.NewClient(cfg.LLMEndpoint, key)
		}
	}

	e := engine.New(cfg, tracer, llmClient)
	results, summary, err := e.Run(ctx, report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failure: %v\n", err)
		return exitAnalysisFailed
	}

	r := render.New(os.Stdout)
	r.Summary(summary)

	var leaksFound, anyFailure, anySuccess bool
	var diags []diagnosis.LeakDiagnosis

	for _, res := range results {
		switch {
		case res.Err != nil:
			r.Error(res.Record, res.Err)
			anyFailure = true
		case res.Inconclusive != nil:
			r.Inconclusive(res.Record, res.Inconclusive.Error())
		default:
			r.Diagnosis(res.Diagnosis)
			diags = append(diags, res.Diagnosis)
			leaksFound = true
			anySuccess = true
		}
	}

	if cfg.DiagnosisCSV != "" && len(diags) > 0 {
		if err := diagnosis.WriteCSV(cfg.DiagnosisCSV, diags); err != nil {
			fmt.Fprintf(os.Stderr, "writing diagnosis csv: %v\n", err)
		}
	}
	if cfg.RootsGraph != "" && len(diags) > 0 {
		if err := diagnosis.WriteRootsGraph(cfg.RootsGraph, diags); err != nil {
			fmt.Fprintf(os.Stderr, "writing roots graph: %v\n", err)
		}
	}

	switch {
	case anyFailure && !anySuccess:
		return exitAnalysisFailed
	case leaksFound:
		return exitLeaksFound
	default:
		return exitOK
	}
}

// runChecker runs the target under the dynamic memory checker and
// returns its text report. Valgrind-like checkers write their report to
// stderr.
func runChecker(ctx context.Context, checkerBin, executable string, targetArgs []string) (string, error) {
	args := append([]string{"--leak-check=full", executable}, targetArgs...)
	cmd := exec.CommandContext(ctx, checkerBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return "", fmt.Errorf("running %s: %w", checkerBin, err)
		}
	}
	return stderr.String(), nil
}

func runConfigure() int {
	fmt.Print("Enter LLM API key: ")
	var key string
	if _, err := fmt.Scanln(&key); err != nil {
		fmt.Fprintf(os.Stderr, "reading key: %v\n", err)
		return exitMisconfigured
	}
	if err := config.SaveCredential(key); err != nil {
		fmt.Fprintf(os.Stderr, "saving credential: %v\n", err)
		return exitMisconfigured
	}
	path, _ := config.CredentialPath()
	fmt.Printf("Saved credential to %s\n", path)
	return exitOK
}
