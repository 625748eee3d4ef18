package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sovereignctl/policyguard/internal/api"
	"github.com/sovereignctl/policyguard/internal/audit"
	"github.com/sovereignctl/policyguard/internal/authn"
	"github.com/sovereignctl/policyguard/internal/bundle"
	"github.com/sovereignctl/policyguard/internal/classify"
	"github.com/sovereignctl/policyguard/internal/config"
	"github.com/sovereignctl/policyguard/internal/llmtransport"
	"github.com/sovereignctl/policyguard/internal/observability"
	"github.com/sovereignctl/policyguard/pkg/policyguard"
)

const observabilityShutdownGrace = 5 * time.Second

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		addr       string
		bundlePath string
		auditLog   string
	)
	cmd.StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.StringVar(&bundlePath, "bundle", "", "Path to a compiled bundle (REQUIRED)")
	cmd.StringVar(&auditLog, "audit-log", "audit/enforcement.jsonl", "Path to append audit entries to")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" {
		fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return 1
	}
	if addr != ":8080" {
		cfg.ListenAddr = addr
	}
	if auditLog != "audit/enforcement.jsonl" {
		cfg.AuditLogPath = auditLog
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: init observability: %v\n", err)
		return 1
	}
	defer provider.Shutdown(context.Background())

	transport := llmtransport.New(llmtransport.Config{
		BaseURL:           cfg.LLMBaseURL,
		MaxRetries:        cfg.MaxRetries,
		CallTimeout:       cfg.LLMTimeout,
		BackendRatePerSec: map[string]float64{"classifier": 5, "generator": 5, "judge": 2, "fact-fallback": 2},
	})

	logger := audit.NewLogger(cfg.AuditLogPath, nil)
	if err := logger.Load(); err != nil {
		fmt.Fprintf(stderr, "Error: load existing audit log: %v\n", err)
		return 1
	}

	engine := policyguard.NewEngine(b, &classify.LLMClassifier{Transport: transport}, transport, logger)
	engine.MaxRetries = cfg.MaxRetries

	var validator *authn.Validator
	if cfg.JWTSigningKey != "" {
		validator = authn.NewHMACValidator([]byte(cfg.JWTSigningKey))
	}

	server := &api.Server{Engine: engine, AuditLogPath: cfg.AuditLogPath}
	mux := http.NewServeMux()
	server.Routes(mux, validator)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), observabilityShutdownGrace)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("policyguard serving", "addr", cfg.ListenAddr, "bundle", bundlePath)
	fmt.Fprintf(stdout, "listening on %s\n", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(stderr, "Error: server failed: %v\n", err)
		return 1
	}
	return 0
}
