package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sovereignctl/policyguard/internal/audit"
	"github.com/sovereignctl/policyguard/internal/bundle"
	"github.com/sovereignctl/policyguard/internal/classify"
	"github.com/sovereignctl/policyguard/internal/config"
	"github.com/sovereignctl/policyguard/internal/llmtransport"
	"github.com/sovereignctl/policyguard/internal/score"
	"github.com/sovereignctl/policyguard/pkg/policyguard"
)

func runEnforceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("enforce", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundlePath string
		query      string
		response   string
		noJudge    bool
		noSMT      bool
		auditLog   string
	)
	cmd.StringVar(&bundlePath, "bundle", "", "Path to a compiled bundle (REQUIRED)")
	cmd.StringVar(&query, "query", "", "The user query to enforce against (REQUIRED)")
	cmd.StringVar(&response, "response", "", "An already-generated response; if empty, one is generated")
	cmd.BoolVar(&noJudge, "no-judge", false, "Skip the judge LLM verifier")
	cmd.BoolVar(&noSMT, "no-smt", false, "Skip the SMT-style fact verifier")
	cmd.StringVar(&auditLog, "audit-log", "", "Path to append an audit entry to")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" || query == "" {
		fmt.Fprintln(stderr, "Error: --bundle and --query are required")
		return 2
	}

	raw, err := os.ReadFile(bundlePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read bundle: %v\n", err)
		return 2
	}
	var b bundle.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		fmt.Fprintf(stderr, "Error: decode bundle: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return 1
	}

	transport := llmtransport.New(llmtransport.Config{
		BaseURL:           cfg.LLMBaseURL,
		MaxRetries:        cfg.MaxRetries,
		CallTimeout:       cfg.LLMTimeout,
		BackendRatePerSec: map[string]float64{"classifier": 5, "generator": 5, "judge": 2, "fact-fallback": 2},
	})

	var logger *audit.Logger
	if auditLog != "" {
		logger = audit.NewLogger(auditLog, nil)
		if err := logger.Load(); err != nil {
			fmt.Fprintf(stderr, "Error: load existing audit log: %v\n", err)
			return 1
		}
	}

	engine := policyguard.NewEngine(b, &classify.LLMClassifier{Transport: transport}, transport, logger)
	engine.SkipJudge = noJudge
	engine.SkipSMT = noSMT
	engine.MaxRetries = cfg.MaxRetries

	ctx := context.Background()
	result, err := engine.Enforce(ctx, policyguard.EnforceRequest{Query: query, Response: response})
	if err != nil {
		fmt.Fprintf(stderr, "Error: enforcement failed: %v\n", err)
		return 1
	}

	encoded, _ := json.MarshalIndent(map[string]interface{}{
		"domain":   result.Context.Domain,
		"intent":   result.Context.Intent,
		"response": result.Response,
		"decision": result.Decision,
	}, "", "  ")
	fmt.Fprintln(stdout, string(encoded))

	switch result.Decision.Action {
	case score.ActionPass, score.ActionAutoCorrect:
		return 0
	default:
		return 1
	}
}
