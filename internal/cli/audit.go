package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/testguard/internal/audit"
	"github.com/ppiankov/testguard/internal/model"
)

var (
	tailLines  int
	tailFollow bool

	replaySession  string
	replayCategory string
	replayDecision string
	replayFrom     string
	replayTo       string
	replayFormat   string

	querySession  string
	queryCategory string
	queryDecision string
	queryTarget   string
	querySince    time.Duration
	queryLimit    int
	queryFormat   string
)

// errChainBroken makes a failed verify exit non-zero.
var errChainBroken = errors.New("audit log hash chain is broken")

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd, auditReplayCmd, auditQueryCmd)

	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVarP(&tailFollow, "follow", "F", false, "Keep printing entries as they are appended")

	auditReplayCmd.Flags().StringVarP(&replaySession, "session", "s", "", "Session id filter")
	auditReplayCmd.Flags().StringVar(&replayCategory, "category", "", "Category filter")
	auditReplayCmd.Flags().StringVar(&replayDecision, "decision", "", "Decision filter (allow|block|skip|xfail)")
	auditReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")

	auditQueryCmd.Flags().StringVarP(&querySession, "session", "s", "", "Session id filter")
	auditQueryCmd.Flags().StringVar(&queryCategory, "category", "", "Category filter")
	auditQueryCmd.Flags().StringVar(&queryDecision, "decision", "", "Decision filter (allow|block|skip|xfail)")
	auditQueryCmd.Flags().StringVar(&queryTarget, "target", "", "Target SQL LIKE pattern (e.g. %.env)")
	auditQueryCmd.Flags().DurationVar(&querySince, "since", 0, "Only events newer than this (e.g. 1h)")
	auditQueryCmd.Flags().IntVar(&queryLimit, "limit", 200, "Maximum events to return")
	auditQueryCmd.Flags().StringVarP(&queryFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log and the sqlite event store.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Long:  "Prints the last N entries of the JSONL audit log, one line each.\nWith --follow, keeps printing new entries until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay <path>",
	Short: "Replay sessions from the audit log",
	Long:  "Reads the audit log, applies the filters, and renders a decision timeline with summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditReplay,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query <db>",
	Short: "Query the sqlite event store",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditQuery,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified (%d sessions)\n", result.Lines, result.Sessions)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errChainBroken
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	start := max(len(lines)-tailLines, 0)
	for _, line := range lines[start:] {
		var entry audit.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintln(out, audit.FormatEntry(entry))
	}

	if !tailFollow {
		return nil
	}
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = audit.Follow(ctx, path, false, func(e audit.Entry) {
		fmt.Fprintln(out, audit.FormatEntry(e))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	filter := audit.ReplayFilter{
		SessionID: replaySession,
		Decision:  model.Decision(replayDecision),
	}
	if replayCategory != "" {
		cat, ok := model.ParseCategory(replayCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", replayCategory)
		}
		filter.Category = cat
	}
	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}
	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(args[0], filter)
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	}
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	store, err := audit.OpenSQLite(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	q := audit.EventQuery{
		SessionID:  querySession,
		Decision:   model.Decision(queryDecision),
		TargetLike: queryTarget,
		Limit:      queryLimit,
	}
	if queryCategory != "" {
		cat, ok := model.ParseCategory(queryCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", queryCategory)
		}
		q.Category = cat
	}
	if querySince > 0 {
		q.Since = time.Now().Add(-querySince)
	}

	events, err := store.Query(cmdContext(cmd), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryFormat == "json" {
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	for _, ev := range events {
		fmt.Fprintln(out, audit.FormatEntry(ev.Entry("")))
	}
	fmt.Fprintf(out, "%d event(s)\n", len(events))
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
