package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	httpserver "github.com/fyrsmithlabs/modelrouter/internal/http"
	"github.com/fyrsmithlabs/modelrouter/internal/routing"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check routerd server health",
		Long: `Check the health status of the routerd HTTP server.

Examples:
  # Check health
  routerctl health

  # Check health on a different server
  routerctl health --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.HealthResponse
			if _, err := opts.client().do(http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			if resp.Version != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Server Version: %s\n", resp.Version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", opts.serverURL)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show router flags and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.StatusResponse
			if _, err := opts.client().do(http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatus(&resp))
			return nil
		},
	}
}

// formatStatus renders the status response on one line.
func formatStatus(s *httpserver.StatusResponse) string {
	routers := make([]string, 0, len(s.Routers))
	for name, enabled := range s.Routers {
		state := "off"
		if enabled {
			state = "on"
		}
		routers = append(routers, name+"="+state)
	}
	sort.Strings(routers)

	feedback := "off"
	if s.Feedback {
		feedback = "on"
	}
	return fmt.Sprintf("%s │ %s │ thompson arms %d │ linucb arms %d │ pending %d │ caches %d │ feedback %s",
		s.Status,
		strings.Join(routers, " "),
		s.Counts.ThompsonArms,
		s.Counts.LinUCBArms,
		s.Counts.PendingDecisions,
		s.Caches,
		feedback)
}

func newSelectCmd(opts *options) *cobra.Command {
	var (
		arms       []string
		features   []float64
		diagnostic bool
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select an arm and print the decision",
		Long: `Ask the router to pick one of the given arms.

Examples:
  # Context-free selection
  routerctl select --arm gpt-4o-mini --arm gpt-4o

  # Contextual selection (requires contextual routing enabled on the server)
  routerctl select --arm small --arm large --features 0.2,1,0,0,0,0,0,1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(arms) == 0 {
				return fmt.Errorf("at least one --arm is required")
			}
			var resp httpserver.SelectResponse
			req := httpserver.SelectRequest{Arms: arms, Features: features, Diagnostic: diagnostic}
			if _, err := opts.client().do(http.MethodPost, "/api/v1/select", req, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decision: %s\nArm:      %s\nRouter:   %s\nScore:    %.4f\n",
				resp.DecisionID, resp.Arm, resp.Router, resp.Score)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&arms, "arm", nil, "candidate arm (repeatable)")
	cmd.Flags().Float64SliceVar(&features, "features", nil, "context feature vector")
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "score contextual arms from a fresh matrix inverse")
	return cmd
}

func newRewardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reward <decision-id> <reward>",
		Short: "Report the reward for a decision",
		Long: `Report the observed reward for a decision. Rewards are clamped to [0, 1]
by the server. Each decision accepts exactly one reward.

Examples:
  routerctl reward 6f1c2a9e-0d5b-4a8e-9f1e-2b7c3d4e5f60 0.8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reward, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid reward %q: %w", args[1], err)
			}
			req := httpserver.RewardRequest{DecisionID: args[0], Reward: &reward}
			if _, err := opts.client().do(http.MethodPost, "/api/v1/reward", req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reward %.4f recorded for %s\n", reward, args[0])
			return nil
		},
	}
}

func newExecuteCmd(opts *options) *cobra.Command {
	var (
		arms     []string
		features []float64
		prompt   string
		budget   time.Duration
		costs    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Route a prompt, call the chosen model and report the reward",
		Long: `Select an arm, send the prompt to it and let the server compute and apply
the reward from success, latency and cost.

Examples:
  routerctl execute --arm gpt-4o-mini --arm gpt-4o --prompt "Say hi" \
    --latency-budget 2s --cost gpt-4o-mini=0.0002 --cost gpt-4o=0.004`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(arms) == 0 {
				return fmt.Errorf("at least one --arm is required")
			}
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			armCosts, err := parseCosts(costs)
			if err != nil {
				return err
			}

			req := httpserver.ExecuteRequest{
				Arms:            arms,
				Features:        features,
				Prompt:          prompt,
				LatencyBudgetMS: budget.Milliseconds(),
				ArmCosts:        armCosts,
			}
			var resp httpserver.ExecuteResponse
			status, err := opts.client().do(http.MethodPost, "/api/v1/execute", req, &resp, http.StatusBadGateway, http.StatusConflict)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Decision: %s\nArm:      %s\nRouter:   %s\nLatency:  %dms\nReward:   %.4f\n",
				resp.DecisionID, resp.Arm, resp.Router, resp.LatencyMS, resp.Reward)
			if status == http.StatusConflict {
				fmt.Fprintf(out, "\n%s\n", resp.Output)
				return fmt.Errorf("reward not applied: %s", resp.Error)
			}
			if resp.Error != "" {
				return fmt.Errorf("model call failed: %s", resp.Error)
			}
			fmt.Fprintf(out, "\n%s\n", resp.Output)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&arms, "arm", nil, "candidate arm (repeatable)")
	cmd.Flags().Float64SliceVar(&features, "features", nil, "context feature vector")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt to send to the chosen model")
	cmd.Flags().DurationVar(&budget, "latency-budget", 0, "latency budget used for the reward")
	cmd.Flags().StringToStringVar(&costs, "cost", nil, "per-call cost in USD as arm=cost (repeatable)")
	return cmd
}

func parseCosts(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for arm, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cost for %s: %w", arm, err)
		}
		out[arm] = f
	}
	return out, nil
}

func newArmsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "arms",
		Short: "Show the learned state of every arm",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap routing.Snapshot
			if _, err := opts.client().do(http.MethodGet, "/api/v1/arms", nil, &snap); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), snap)
			}
			return writeSnapshot(cmd, snap)
		},
	}
}

func writeSnapshot(cmd *cobra.Command, snap routing.Snapshot) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTER\tARM\tALPHA\tBETA\tMEAN")
	for _, name := range sortedKeys(snap.Thompson) {
		s := snap.Thompson[name]
		fmt.Fprintf(tw, "thompson\t%s\t%.3f\t%.3f\t%.4f\n", name, s.Alpha, s.Beta, s.Mean())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.LinUCB) == 0 {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	tw = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTER\tARM\tUPDATES\tTHETA")
	for _, name := range sortedKeys(snap.LinUCB) {
		s := snap.LinUCB[name]
		fmt.Fprintf(tw, "linucb\t%s\t%d\t%s\n", name, s.Updates, formatVector(s.Theta))
	}
	return tw.Flush()
}

func newSaveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist router state on the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.client().do(http.MethodPost, "/api/v1/state/save", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Router state saved")
			return nil
		},
	}
}

func newCacheCmd(opts *options) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain server caches",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats []cache.StatsSnapshot
			if _, err := opts.client().do(http.MethodGet, "/api/v1/cache/stats", nil, &stats); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CACHE\tSIZE\tMAX\tHIT RATIO\tHITS\tMISSES\tEVICTIONS\tEXPIRED\tTTL")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%d\t%d\t%d\t%d\t%s\n",
					s.Name, s.Size, s.MaxSize, s.HitRatio, s.Hits, s.Misses, s.Evictions, s.ExpiredRemovals,
					time.Duration(s.TTLSeconds*float64(time.Second)))
			}
			return tw.Flush()
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries from every cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.CleanupResponse
			if _, err := opts.client().do(http.MethodPost, "/api/v1/cache/cleanup", nil, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, name := range sortedKeys(resp.Removed) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d removed\n", name, resp.Removed[name])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\n", resp.Total)
			return nil
		},
	}

	cacheCmd.AddCommand(statsCmd, cleanupCmd)
	return cacheCmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
