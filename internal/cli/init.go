package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/testguard/internal/policy"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing policy file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default sandbox policy",
	Long: `Writes the default policy with test mode enabled.

Target: --policy if given, else $TESTGUARD_POLICY, else ~/.testguard/policy.yaml.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := policy.ResolvePath(policyPath)
	if path == "" {
		return fmt.Errorf("cannot determine policy path: pass --policy")
	}
	if err := policy.WriteDefault(path, initForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "testguard init complete.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Created:\n  %s\n\n", path)
	fmt.Fprintln(out, "Check a decision:")
	fmt.Fprintln(out, "  testguard check filesystem_write ./out/report.txt")
	return nil
}
