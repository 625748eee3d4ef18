// Package policyguard wires the compile-time pipeline (IR Builder,
// Decision-Graph Compiler, Conflict Detector, Priority Resolver, Bundle
// Compiler) and the runtime pipeline (Pre-Gen Context Builder, During-Gen
// Injector, Post-Gen Verifiers, Scorer & Router, Audit Log) into a single
// façade, the one entrypoint cmd/policyguard and internal/api both call
// through rather than reaching into internal/* packages directly.
//
// Grounded on core/pkg/compliance's own compiler+engine split: a thin
// top-level type that owns no business logic of its own, only sequencing.
package policyguard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sovereignctl/policyguard/internal/audit"
	"github.com/sovereignctl/policyguard/internal/bundle"
	"github.com/sovereignctl/policyguard/internal/classify"
	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/conflict"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/llmtransport"
	"github.com/sovereignctl/policyguard/internal/priority"
	"github.com/sovereignctl/policyguard/internal/scaffold"
	"github.com/sovereignctl/policyguard/internal/score"
	"github.com/sovereignctl/policyguard/internal/verify"
)

// ValidateResult is the outcome of compiling a raw policy set into a bundle.
type ValidateResult struct {
	Bundle         bundle.Bundle   `json:"bundle"`
	ConflictReport conflict.Report `json:"conflict_report"`
	Plan           priority.Plan   `json:"resolution_plan"`
	IntegrityWarns []string        `json:"integrity_warnings"`
}

// Validate runs the full compile-time pipeline over raw policy-record JSON
// (a JSON array, schema-checked before any field is trusted) and returns
// the compiled bundle plus the conflict/resolution reports a caller would
// want to inspect before persisting the bundle.
func Validate(ctx context.Context, rawJSON []byte, generatedOn string) (ValidateResult, error) {
	if err := ir.ValidateRaw(rawJSON); err != nil {
		return ValidateResult{}, fmt.Errorf("policyguard: validate raw records: %w", err)
	}

	var records []ir.RawPolicyRecord
	if err := json.Unmarshal(rawJSON, &records); err != nil {
		return ValidateResult{}, fmt.Errorf("policyguard: decode raw records: %w", err)
	}

	policyIR := ir.Build(records, time.Now)
	dg := graph.Build(policyIR)

	report, err := conflict.Detect(ctx, dg)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("policyguard: conflict detection: %w", err)
	}

	metaByPolicy := make(map[string]ir.RuleMetadata, len(policyIR.ConditionalRules))
	for _, rule := range policyIR.ConditionalRules {
		metaByPolicy[rule.PolicyID] = rule.Metadata
	}
	plan := priority.Resolve(report, nil, metaByPolicy)

	b := bundle.Compile(policyIR, dg, plan, generatedOn)
	warnings := bundle.ValidateIntegrity(b)

	return ValidateResult{
		Bundle:         b,
		ConflictReport: report,
		Plan:           plan,
		IntegrityWarns: warnings,
	}, nil
}

// EnforceRequest carries one query (and, optionally, an already-generated
// response) through the runtime pipeline.
type EnforceRequest struct {
	SessionID string
	Query     string
	Response  string // if empty, Enforce generates one via Transport
}

// EnforceResult is everything an operator or audit reviewer needs about one
// enforcement run.
type EnforceResult struct {
	Context  pgcontext.EnforcementContext `json:"context"`
	Prompt   scaffold.Prompt              `json:"prompt"`
	Response string                       `json:"response"`
	Report   verify.Report                `json:"postgen_report"`
	Decision score.Decision               `json:"decision"`
}

// Engine bundles the loaded policy artifact with the runtime collaborators
// (classifier, LLM transport, audit logger) every Enforce call needs.
type Engine struct {
	Bundle     bundle.Bundle
	Index      bundle.Index
	Classifier classify.Classifier
	Transport  *llmtransport.Client
	AuditLog   *audit.Logger

	// BaseSystemPrompt is prepended ahead of any policy scaffold additions.
	BaseSystemPrompt string
	// SkipJudge/SkipSMT mirror the CLI's --no-judge/--no-smt escape hatches,
	// useful when the judge or fact-extraction LLM backend is unavailable.
	SkipJudge bool
	SkipSMT   bool
	// MaxRetries bounds the regenerate retry loop (§4.10). Zero falls back
	// to 1: even an unconfigured engine gets one shot at regenerating
	// before escalating, rather than escalating immediately.
	MaxRetries int
}

// NewEngine builds an Engine from a loaded bundle and its runtime
// collaborators. classifier/transport/auditLog may be nil for components
// a caller doesn't need (e.g. a dry validate-only invocation never reaches
// Enforce at all).
func NewEngine(b bundle.Bundle, classifier classify.Classifier, transport *llmtransport.Client, auditLog *audit.Logger) *Engine {
	return &Engine{
		Bundle:     b,
		Index:      bundle.BuildIndex(b),
		Classifier: classifier,
		Transport:  transport,
		AuditLog:   auditLog,
	}
}

// Enforce runs the full runtime pipeline for one query: classify + retrieve
// + dominance (C7), scaffold + prompt assembly (C8), generation (if
// req.Response is empty), post-gen verification (C9), scoring and routing
// (C10), and audit logging (C11, only if e.AuditLog is configured).
func (e *Engine) Enforce(ctx context.Context, req EnforceRequest) (EnforceResult, error) {
	start := time.Now()

	ec, err := pgcontext.Build(ctx, req.Query, e.Bundle, e.Index, e.Classifier, req.SessionID, time.Now)
	if err != nil {
		return EnforceResult{}, fmt.Errorf("policyguard: build enforcement context: %w", err)
	}

	// Unknown domain, nothing applicable: short-circuit to a pass without
	// ever touching the generator, matching orchestrator.py's handling of
	// queries outside every governed domain.
	if ec.Domain == "unknown" && len(ec.ApplicableRules) == 0 {
		decision := score.Decision{
			Score:      1.0,
			Action:     score.ActionPass,
			Violations: []string{},
			Evidence:   map[string]interface{}{},
			AuditTrail: map[string]interface{}{"short_circuit": "unknown_domain_no_rules"},
		}
		result := EnforceResult{Context: ec, Decision: decision}
		if e.AuditLog != nil {
			durationMS := float64(time.Since(start).Microseconds()) / 1000.0
			entry := audit.BuildEntry(ec, nil, decision, durationMS)
			if _, err := e.AuditLog.Log(entry); err != nil {
				return result, fmt.Errorf("policyguard: audit log append: %w", err)
			}
		}
		return result, nil
	}

	injection := scaffold.BuildInjectionBundle(ec, e.Bundle.Variables, e.Bundle.DecisionNodes)
	prompt := scaffold.FormatFullPrompt(req.Query, injection, e.BaseSystemPrompt)

	responseText := req.Response
	if responseText == "" {
		if e.Transport == nil {
			return EnforceResult{}, fmt.Errorf("policyguard: no response supplied and no transport configured to generate one")
		}
		generated, err := e.Transport.Generate(ctx, "generator", prompt.System+"\n\n"+prompt.User)
		if err != nil {
			return EnforceResult{}, fmt.Errorf("policyguard: generate response: %w", err)
		}
		responseText = generated
	}

	opts := verify.Options{Transport: e.Transport}
	report := verify.RunAll(ctx, responseText, ec, e.Bundle.Variables, opts)
	e.applySkips(&report)

	decision := score.BuildDecision(report, responseText)
	responseText, report, decision = e.retry(ctx, ec, prompt, responseText, report, decision, opts)

	result := EnforceResult{
		Context:  ec,
		Prompt:   prompt,
		Response: responseText,
		Report:   report,
		Decision: decision,
	}

	if e.AuditLog != nil {
		durationMS := float64(time.Since(start).Microseconds()) / 1000.0
		entry := audit.BuildEntry(ec, &report, decision, durationMS)
		if _, err := e.AuditLog.Log(entry); err != nil {
			return result, fmt.Errorf("policyguard: audit log append: %w", err)
		}
	}

	return result, nil
}

// applySkips neutralizes the judge and/or SMT verifiers per the engine's
// --no-judge/--no-smt escape hatches.
func (e *Engine) applySkips(report *verify.Report) {
	if e.SkipJudge {
		report.JudgeResult = verify.JudgeResult{Score: 1.0}
	}
	if e.SkipSMT {
		report.SMTResult = verify.SMTResult{Passed: true, Score: 1.0}
	}
}

// retry implements §4.10's retry policy. auto_correct gets at most one
// retry with FIX: hints, accepted only if it reaches a pass; regenerate
// gets up to e.MaxRetries retries with DO NOT: directives, accepted only
// on an outright pass. Exhausting either budget degrades the action to
// escalate. Retries never mutate the injection bundle other than by
// appending the hint block to the already-assembled prompt.
func (e *Engine) retry(ctx context.Context, ec pgcontext.EnforcementContext, prompt scaffold.Prompt, responseText string, report verify.Report, decision score.Decision, opts verify.Options) (string, verify.Report, score.Decision) {
	switch decision.Action {
	case score.ActionAutoCorrect:
		retried, ok := e.attemptRetry(ctx, ec, prompt, "FIX:", decision.Violations, opts)
		if !ok {
			decision.Action = score.ActionEscalate
			return responseText, report, decision
		}
		if retried.decision.Score >= score.ThresholdPass {
			return retried.response, retried.report, retried.decision
		}
		decision.Action = score.ActionEscalate
		return responseText, report, decision

	case score.ActionRegenerate:
		maxRetries := e.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}
		violations := decision.Violations
		for attempt := 0; attempt < maxRetries; attempt++ {
			retried, ok := e.attemptRetry(ctx, ec, prompt, "DO NOT:", violations, opts)
			if !ok {
				break
			}
			if retried.decision.Action == score.ActionPass {
				return retried.response, retried.report, retried.decision
			}
			violations = retried.decision.Violations
		}
		decision.Action = score.ActionEscalate
		return responseText, report, decision

	default:
		return responseText, report, decision
	}
}

// retryAttempt is one regenerated response carried through verification
// and scoring.
type retryAttempt struct {
	response string
	report   verify.Report
	decision score.Decision
}

// attemptRetry regenerates a response against prompt plus a hint block
// built from violations (one "<prefix> <violation>" line each), then runs
// it back through verification and scoring. ok is false when no transport
// is configured or generation fails, meaning the retry budget cannot be
// spent at all.
func (e *Engine) attemptRetry(ctx context.Context, ec pgcontext.EnforcementContext, prompt scaffold.Prompt, prefix string, violations []string, opts verify.Options) (retryAttempt, bool) {
	if e.Transport == nil {
		return retryAttempt{}, false
	}

	retryPrompt := appendHintBlock(prompt, prefix, violations)
	generated, err := e.Transport.Generate(ctx, "generator", retryPrompt.System+"\n\n"+retryPrompt.User)
	if err != nil {
		return retryAttempt{}, false
	}

	retryReport := verify.RunAll(ctx, generated, ec, e.Bundle.Variables, opts)
	e.applySkips(&retryReport)
	retryDecision := score.BuildDecision(retryReport, generated)

	return retryAttempt{response: generated, report: retryReport, decision: retryDecision}, true
}

// appendHintBlock appends one "<prefix> <violation>" line per violation to
// the user turn of prompt, leaving everything else untouched. No
// violations means no hint block and the original prompt is returned as-is.
func appendHintBlock(prompt scaffold.Prompt, prefix string, violations []string) scaffold.Prompt {
	if len(violations) == 0 {
		return prompt
	}
	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		lines = append(lines, prefix+" "+v)
	}
	return scaffold.Prompt{
		System: prompt.System,
		User:   prompt.User + "\n\n" + strings.Join(lines, "\n"),
	}
}
