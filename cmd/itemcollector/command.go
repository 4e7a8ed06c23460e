package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServerAddr = "http://localhost:8080"
	commandTimeout    = 30 * time.Second
)

// startCmd asks a running server to start item idling.
var startCmd = &cobra.Command{
	Use:   "start <targets>",
	Short: "Start item idling on a running server",
	Long: `Start item idling for the given sessions on a running itemcollector.

Targets are a comma-separated list of session names. "all" or "ASF"
selects every registered session. One line is printed per target.

Example:
  itemcollector start bot1,bot2
  itemcollector start all --addr http://collector:8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "/api/sessions/start", args[0])
	},
}

// stopCmd asks a running server to stop item idling.
var stopCmd = &cobra.Command{
	Use:   "stop <targets>",
	Short: "Stop item idling on a running server",
	Long: `Stop item idling for the given sessions on a running itemcollector.

Targets use the same syntax as the start command.

Example:
  itemcollector stop bot1
  itemcollector stop all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "/api/sessions/stop", args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, stopCmd} {
		c.Flags().String("addr", defaultServerAddr, "base URL of the running server")
		rootCmd.AddCommand(c)
	}
}

func runCommand(cmd *cobra.Command, path, targets string) error {
	addr, _ := cmd.Flags().GetString("addr")

	response, err := postCommand(cmd.Context(), addr, path, targets)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), response)
	return nil
}

// postCommand sends a command to the server API and returns its response
// text.
func postCommand(ctx context.Context, addr, path, targets string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	endpoint := strings.TrimRight(addr, "/") + path + "?" + url.Values{"targets": {targets}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Response, nil
}
