package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/testguard/internal/policy"
	"github.com/ppiankov/testguard/internal/policydiff"
)

var policyFormat string

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyDiffCmd)
	policyShowCmd.Flags().StringVarP(&policyFormat, "format", "f", "text", "Output format (text|json)")
	policyDiffCmd.Flags().StringVarP(&policyFormat, "format", "f", "text", "Output format (text|json)")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy inspection",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective policy",
	Long:  "Loads the policy (file, defaults, env overrides) and prints the resolved\nroots, protected files, env whitelist and ordered rules.",
	Args:  cobra.NoArgs,
	RunE:  runPolicyShow,
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files",
	Long:  "Lists changed fields and added/removed roots, protected files and\nwhitelisted variables, each labelled stricter or looser.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyDiff,
}

type policyView struct {
	Path      string     `json:"path"`
	Hash      string     `json:"hash"`
	TestMode  bool       `json:"test_mode"`
	BaseDir   string     `json:"base_dir"`
	Roots     []string   `json:"allowed_path_roots"`
	Protected []string   `json:"protected_files"`
	Whitelist []string   `json:"env_whitelist"`
	Rules     []ruleView `json:"rules"`
	AuditLog  string     `json:"audit_log,omitempty"`
	AuditDB   string     `json:"audit_db,omitempty"`
}

type ruleView struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	reg, err := policy.Load(policyPath)
	if err != nil {
		return err
	}

	view := policyView{
		Path:      policy.ResolvePath(policyPath),
		Hash:      reg.Hash(),
		TestMode:  reg.TestMode(),
		BaseDir:   reg.BaseDir(),
		Roots:     reg.Roots(),
		Protected: reg.Protected().Entries(),
		Whitelist: reg.Whitelist(),
		AuditLog:  reg.AuditLogPath(),
		AuditDB:   reg.AuditDBPath(),
	}
	for _, r := range reg.Rules() {
		view.Rules = append(view.Rules, ruleView{
			ID:       r.ID,
			Category: string(r.Category),
			Decision: string(r.Decision),
			Reason:   r.Reason,
		})
	}

	out := cmd.OutOrStdout()
	if policyFormat == "json" {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Policy:    %s\n", view.Path)
	fmt.Fprintf(out, "Hash:      %s\n", view.Hash)
	fmt.Fprintf(out, "Test mode: %v\n", view.TestMode)
	fmt.Fprintf(out, "Base dir:  %s\n", view.BaseDir)
	printList(cmd, "Allowed roots", view.Roots)
	printList(cmd, "Protected files", view.Protected)
	printList(cmd, "Env whitelist", view.Whitelist)
	fmt.Fprintln(out, "Rules:")
	for _, r := range view.Rules {
		fmt.Fprintf(out, "  %-18s %-18s %-6s %s\n", r.ID, r.Category, r.Decision, r.Reason)
	}
	return nil
}

func printList(cmd *cobra.Command, title string, items []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	if len(items) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(out, "  %s\n", item)
	}
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	result, err := policydiff.DiffFiles(args[0], args[1])
	if err != nil {
		return err
	}
	if policyFormat == "json" {
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(result))
	return nil
}
