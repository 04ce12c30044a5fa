package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/testguard/internal/audit"
	"github.com/ppiankov/testguard/internal/enforce"
	"github.com/ppiankov/testguard/internal/model"
)

// --- Input/Output types ---

// Violation describes a refused operation.
type Violation struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	RuleID string `json:"rule_id,omitempty"`
	Seq    uint64 `json:"seq"`
}

// CheckInput defines parameters for the testguard_check tool.
type CheckInput struct {
	Category string `json:"category" jsonschema:"operation category (network/process_spawn/filesystem_write/env_mutation/clock_control/clock_patch/permission_change/database)"`
	Target   string `json:"target" jsonschema:"address, command, path or variable name"`
}

// CheckOutput contains the policy decision.
type CheckOutput struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
	RuleID   string `json:"rule_id,omitempty"`
	Target   string `json:"target"`
}

// WriteFileInput defines parameters for the testguard_write_file tool.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"file path"`
	Content string `json:"content" jsonschema:"file content"`
	Append  bool   `json:"append,omitempty" jsonschema:"append instead of truncating"`
}

// WriteFileOutput reports the write result or block details.
type WriteFileOutput struct {
	Path      string     `json:"path"`
	Bytes     int        `json:"bytes"`
	Violation *Violation `json:"violation,omitempty"`
}

// SetenvInput defines parameters for the testguard_setenv tool.
type SetenvInput struct {
	Name  string `json:"name" jsonschema:"variable name"`
	Value string `json:"value,omitempty" jsonschema:"new value"`
	Unset bool   `json:"unset,omitempty" jsonschema:"remove the variable instead of setting it"`
}

// SetenvOutput reports the mutation result or block details.
type SetenvOutput struct {
	Name      string     `json:"name"`
	Violation *Violation `json:"violation,omitempty"`
}

// ExecInput defines parameters for the testguard_exec tool.
type ExecInput struct {
	Command string   `json:"command" jsonschema:"command to execute"`
	Args    []string `json:"args,omitempty" jsonschema:"command arguments"`
}

// ExecOutput contains the result of command execution or block details.
type ExecOutput struct {
	Stdout    string     `json:"stdout,omitempty"`
	Stderr    string     `json:"stderr,omitempty"`
	ExitCode  int        `json:"exit_code"`
	Violation *Violation `json:"violation,omitempty"`
}

// HTTPInput defines parameters for the testguard_http tool.
type HTTPInput struct {
	Method string `json:"method,omitempty" jsonschema:"HTTP method (default GET)"`
	URL    string `json:"url" jsonschema:"request URL"`
	Body   string `json:"body,omitempty" jsonschema:"request body"`
}

// HTTPOutput contains the HTTP response or block details.
type HTTPOutput struct {
	Status    int        `json:"status,omitempty"`
	Body      string     `json:"body,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
}

// AuditInput filters the testguard_audit result.
type AuditInput struct {
	Since    uint64 `json:"since,omitempty" jsonschema:"only events with a sequence number greater than this"`
	Category string `json:"category,omitempty" jsonschema:"only events in this category"`
	Decision string `json:"decision,omitempty" jsonschema:"only events with this decision (allow/block/skip/xfail)"`
}

// AuditOutput is the filtered session trail.
type AuditOutput struct {
	SessionID string              `json:"session_id"`
	Entries   []audit.Entry       `json:"entries"`
	Summary   audit.ReplaySummary `json:"summary"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	cat, ok := model.ParseCategory(input.Category)
	if !ok {
		return nil, CheckOutput{}, fmt.Errorf("unknown category %q", input.Category)
	}
	op, v := s.session.Registry().Resolve(model.Operation{Category: cat, Target: input.Target})
	return nil, CheckOutput{
		Decision: string(v.Decision),
		Reason:   v.Reason,
		RuleID:   v.RuleID,
		Target:   op.Target,
	}, nil
}

func (s *Server) handleWriteFile(ctx context.Context, req *mcpsdk.CallToolRequest, input WriteFileInput) (*mcpsdk.CallToolResult, WriteFileOutput, error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if input.Append {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := s.gw.OpenFile(input.Path, flag, 0644)
	if err != nil {
		if b, ok := blocked(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, WriteFileOutput{Path: input.Path, Violation: b}, nil
		}
		return nil, WriteFileOutput{}, err
	}
	defer f.Close()

	n, err := io.WriteString(f, input.Content)
	if err != nil {
		return nil, WriteFileOutput{}, fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil, WriteFileOutput{Path: f.Name(), Bytes: n}, nil
}

func (s *Server) handleSetenv(ctx context.Context, req *mcpsdk.CallToolRequest, input SetenvInput) (*mcpsdk.CallToolResult, SetenvOutput, error) {
	var err error
	if input.Unset {
		err = s.gw.Unsetenv(input.Name)
	} else {
		err = s.gw.Setenv(input.Name, input.Value)
	}
	if err != nil {
		if b, ok := blocked(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, SetenvOutput{Name: input.Name, Violation: b}, nil
		}
		return nil, SetenvOutput{}, err
	}
	return nil, SetenvOutput{Name: input.Name}, nil
}

func (s *Server) handleExec(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	result, err := s.guard.Run(ctx, input.Command, input.Args, nil)
	if err != nil {
		if b, ok := blocked(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, ExecOutput{Violation: b}, nil
		}
		return nil, ExecOutput{}, err
	}

	return nil, ExecOutput{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}, nil
}

func (s *Server) handleHTTP(ctx context.Context, req *mcpsdk.CallToolRequest, input HTTPInput) (*mcpsdk.CallToolResult, HTTPOutput, error) {
	if input.Method == "" {
		input.Method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(input.Method), input.URL, strings.NewReader(input.Body))
	if err != nil {
		return nil, HTTPOutput{}, fmt.Errorf("invalid request: %w", err)
	}

	resp, err := s.gw.HTTPClient().Do(httpReq)
	if err != nil {
		if b, ok := blocked(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, HTTPOutput{Violation: b}, nil
		}
		return nil, HTTPOutput{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, HTTPOutput{}, fmt.Errorf("failed to read response: %w", err)
	}
	return nil, HTTPOutput{Status: resp.StatusCode, Body: string(body)}, nil
}

func (s *Server) handleAudit(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditInput) (*mcpsdk.CallToolResult, AuditOutput, error) {
	filter := audit.ReplayFilter{Decision: model.Decision(input.Decision)}
	if input.Category != "" {
		cat, ok := model.ParseCategory(input.Category)
		if !ok {
			return nil, AuditOutput{}, fmt.Errorf("unknown category %q", input.Category)
		}
		filter.Category = cat
	}

	var events []audit.Event
	for _, ev := range s.session.Log().Since(input.Since) {
		if filter.Match(ev.Entry("")) {
			events = append(events, ev)
		}
	}

	res := audit.Summarize(s.session.SessionID(), events)
	out := AuditOutput{SessionID: res.SessionID, Entries: res.Entries, Summary: res.Summary}
	if out.Entries == nil {
		out.Entries = []audit.Entry{}
	}
	return nil, out, nil
}

// blocked extracts the violation carried by err, if any.
func blocked(err error) (*Violation, bool) {
	var v *enforce.Violation
	if !errors.As(err, &v) {
		return nil, false
	}
	return &Violation{
		Kind:   string(v.Kind),
		Reason: v.Reason,
		RuleID: v.RuleID,
		Seq:    v.Seq,
	}, true
}
