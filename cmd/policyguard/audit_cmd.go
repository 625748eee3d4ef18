package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/sovereignctl/policyguard/internal/audit"
)

func runAuditVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() < 1 {
		fmt.Fprintln(stderr, "Usage: policyguard audit verify <audit.jsonl>")
		return 2
	}

	result, err := audit.VerifyFile(cmd.Arg(0), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: verify audit log: %v\n", err)
		return 2
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(encoded))

	if !result.Valid {
		return 1
	}
	return 0
}
