package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/policy"
	"github.com/ppiankov/testguard/internal/scenario"
)

var (
	checkScenario string
	checkFormat   string
)

// errBlocked makes a blocked single check exit non-zero.
var errBlocked = errors.New("operation would be blocked")

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format for scenarios (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [<category> <target>]",
	Short: "Evaluate operations against the policy",
	Long: "With a category and target, prints the decision for that one operation.\n" +
		"With --scenario, loads scenario YAML files matching a glob pattern,\n" +
		"evaluates each case and reports pass/fail.\n\n" +
		"Nothing is audited. Exit code 1 if the operation is blocked or any case fails.",
	Args: func(cmd *cobra.Command, args []string) error {
		if checkScenario != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	reg, err := policy.Load(policyPath)
	if err != nil {
		return err
	}
	if checkScenario != "" {
		return runScenarios(cmd, reg)
	}

	cat, ok := model.ParseCategory(args[0])
	if !ok {
		return fmt.Errorf("unknown category %q", args[0])
	}
	op, v := reg.Resolve(model.Operation{Category: cat, Target: args[1]})
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s) [%s]\n", v.Decision, cat, op.Target, v.Reason, v.RuleID)
	if !v.Allowed() {
		return errBlocked
	}
	return nil
}

func runScenarios(cmd *cobra.Command, reg *policy.Registry) error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	var results []*scenario.RunResult
	failed := 0
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, reg)
		if err != nil {
			return err
		}
		failed += r.Failed
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	}

	if failed > 0 {
		return fmt.Errorf("%d scenario case(s) failed", failed)
	}
	return nil
}
