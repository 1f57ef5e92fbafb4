// Package main implements routerctl, a CLI for manual operations against a
// routerd HTTP server and for inspecting router state files offline.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every command.
type options struct {
	serverURL string
	timeout   time.Duration
	jsonOut   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "routerctl",
		Short: "CLI for routerd operations",
		Long: `routerctl is a command-line interface for the routerd model router.
It selects arms, reports rewards, inspects router and cache state, and reads
persisted router state files without a running server.`,
		Version:      version,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:9191", "routerd server URL")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(
		newHealthCmd(opts),
		newStatusCmd(opts),
		newSelectCmd(opts),
		newRewardCmd(opts),
		newExecuteCmd(opts),
		newArmsCmd(opts),
		newSaveCmd(opts),
		newCacheCmd(opts),
		newStateCmd(opts),
	)
	return rootCmd
}

// client is a thin JSON client for the routerd API.
type client struct {
	baseURL string
	http    *http.Client
}

func (o *options) client() *client {
	return &client{
		baseURL: strings.TrimRight(o.serverURL, "/"),
		http:    &http.Client{Timeout: o.timeout},
	}
}

// do sends body as JSON (when non-nil) and decodes the response into out
// (when non-nil). Any status outside 2xx is returned as an error carrying
// the response body. okStatuses lists non-2xx statuses that still carry a
// decodable body.
func (c *client) do(method, path string, body, out any, okStatuses ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := c.baseURL + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	accepted := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			accepted = true
		}
	}
	if !accepted {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return resp.StatusCode, fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return resp.StatusCode, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
