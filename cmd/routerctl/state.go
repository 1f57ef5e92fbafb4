package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
)

// Router state file kinds.
const (
	kindThompson = "thompson"
	kindLinUCB   = "linucb"
)

func newStateCmd(opts *options) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Work with persisted router state files",
	}

	var kind string
	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a router state file without a running server",
		Long: `Read a Thompson or LinUCB state file and print each arm.

The kind is detected from the file name (thompson_state.json or
linucb_state_d<N>.json) or from the content when the name is unknown.

Examples:
  routerctl state inspect ~/.config/modelrouter/state/thompson_state.json
  routerctl state inspect --kind linucb backup.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			k := kind
			if k == "" {
				detected, err := detectKind(path)
				if err != nil {
					return err
				}
				k = detected
			}

			switch k {
			case kindThompson:
				arms, err := bandit.ReadThompsonState(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), arms)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ARM\tALPHA\tBETA\tMEAN")
				for _, name := range sortedKeys(arms) {
					s := arms[name]
					fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.4f\n", name, s.Alpha, s.Beta, s.Mean())
				}
				return tw.Flush()

			case kindLinUCB:
				arms, err := bandit.ReadLinUCBState(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), arms)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ARM\tDIM\tB\tTHETA")
				for _, name := range sortedKeys(arms) {
					s := arms[name]
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, len(s.B), formatVector(s.B), formatVector(s.Theta))
				}
				return tw.Flush()

			default:
				return fmt.Errorf("unknown state kind %q (want %s or %s)", k, kindThompson, kindLinUCB)
			}
		},
	}
	inspectCmd.Flags().StringVar(&kind, "kind", "", "state kind: thompson or linucb (detected when empty)")

	stateCmd.AddCommand(inspectCmd)
	return stateCmd
}

// detectKind guesses the state kind from the file name, falling back to
// the keys of the first arm in the file.
func detectKind(path string) (string, error) {
	base := filepath.Base(path)
	switch {
	case base == bandit.ThompsonStateFile:
		return kindThompson, nil
	case strings.HasPrefix(base, "linucb_state_d"):
		return kindLinUCB, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	var arms map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &arms); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, fields := range arms {
		if _, ok := fields["alpha"]; ok {
			return kindThompson, nil
		}
		if _, ok := fields["A"]; ok {
			return kindLinUCB, nil
		}
	}
	return "", fmt.Errorf("cannot tell the state kind of %s, use --kind", path)
}
