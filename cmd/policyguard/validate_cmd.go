package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sovereignctl/policyguard/internal/bundlestore"
	"github.com/sovereignctl/policyguard/pkg/policyguard"
)

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		out   string
		s3URI string
	)
	cmd.StringVar(&out, "out", "bundle.json", "Path to write the compiled bundle")
	cmd.StringVar(&s3URI, "s3", "", "Optional s3://bucket/key destination to mirror the bundle to")

	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: policyguard validate <policies.jsonl> --out bundle.json [--s3 s3://bucket/key]")
		return 2
	}
	policiesPath := args[0]
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	raw, err := os.ReadFile(policiesPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read policies file: %v\n", err)
		return 2
	}
	raw, err = jsonlToArray(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	result, err := policyguard.Validate(ctx, raw, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		fmt.Fprintf(stderr, "Error: validation failed: %v\n", err)
		return 1
	}

	for _, w := range result.IntegrityWarns {
		fmt.Fprintf(stderr, "Warning: %s\n", w)
	}
	if n := len(result.ConflictReport.LogicalConflicts); n > 0 {
		fmt.Fprintf(stderr, "Found %d logical conflicts; %d escalations, %d auto-resolutions in the priority plan\n",
			n, len(result.Plan.Escalations), len(result.Plan.AutoResolutions))
	}

	encoded, err := json.MarshalIndent(result.Bundle, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: encode bundle: %v\n", err)
		return 1
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: write bundle: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Compiled bundle written to %s (%d rules, %d paths)\n",
		out, result.Bundle.BundleMetadata.RuleCount, result.Bundle.BundleMetadata.PathCount)

	if s3URI != "" {
		s3cfg, err := parseS3URI(s3URI)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		blobStore, err := bundlestore.NewS3Store(ctx, s3cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: connect to S3: %v\n", err)
			return 1
		}
		hash, err := bundlestore.Save(ctx, blobStore, result.Bundle)
		if err != nil {
			fmt.Fprintf(stderr, "Error: mirror bundle to S3: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Mirrored bundle to %s as %s\n", s3URI, hash)
	}

	return 0
}

// jsonlToArray accepts either a JSON array or newline-delimited JSON
// objects and normalizes to a single JSON array, since raw policy records
// are commonly produced one-per-line by an upstream extraction pipeline.
func jsonlToArray(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return raw, nil
	}
	var objs []json.RawMessage
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		objs = append(objs, json.RawMessage(line))
	}
	encoded, err := json.Marshal(objs)
	if err != nil {
		return nil, fmt.Errorf("normalize JSONL input: %w", err)
	}
	return encoded, nil
}

func parseS3URI(uri string) (bundlestore.S3Config, error) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri {
		return bundlestore.S3Config{}, fmt.Errorf("invalid S3 URI %q: expected s3://bucket/prefix", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	cfg := bundlestore.S3Config{Bucket: parts[0]}
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	return cfg, nil
}
