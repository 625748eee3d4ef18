// Command policyguard is the CLI and server entrypoint for the policy
// governance pipeline: compiling raw policy records into a bundle,
// enforcing one query/response pair against a compiled bundle, verifying
// an audit log's hash chain, and serving the HTTP API.
//
// Grounded on core/cmd/helm/main.go's Run(args, stdout, stderr) int
// dispatch (subcommand switch, explicit writers for testability) and its
// per-subcommand file layout (one file per command under cmd/policyguard).
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, factored out of main so tests can drive it
// with captured writers instead of the real process stdout/stderr.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "enforce":
		return runEnforceCmd(args[2:], stdout, stderr)
	case "audit":
		if len(args) < 3 || args[2] != "verify" {
			fmt.Fprintln(stderr, "Usage: policyguard audit verify <audit.jsonl>")
			return 2
		}
		return runAuditVerifyCmd(args[3:], stdout, stderr)
	case "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "PolicyGuard — compile, enforce, and audit LLM output policy.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  policyguard <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  validate <policies.jsonl> --out bundle.json [--s3 s3://bucket/key]")
	fmt.Fprintln(w, "      Compile raw policy records into a bundle.")
	fmt.Fprintln(w, "  enforce --bundle <path> --query <q> [--response <r>] [--no-judge] [--no-smt] [--audit-log <path>]")
	fmt.Fprintln(w, "      Run one query (and optional response) through the enforcement pipeline.")
	fmt.Fprintln(w, "  audit verify <audit.jsonl>")
	fmt.Fprintln(w, "      Verify an audit log's hash chain.")
	fmt.Fprintln(w, "  serve --addr :8443 --bundle <path> --audit-log <path>")
	fmt.Fprintln(w, "      Start the HTTP API.")
}
