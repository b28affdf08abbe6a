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

	"mercator-hq/courier/pkg/cli"
)

var cancelFlags struct {
	target  string
	apiKey  string
	timeout time.Duration
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel an in-flight request on a running proxy",
	Long: `Cancel an in-flight request by the id the proxy returned in the
X-Request-ID response header (or the id the client supplied).

A cancelled stream ends with a request_cancelled error event; a cancelled
non-streaming request fails with the same error.

Examples:
  courier cancel req-1234
  courier cancel req-1234 --target http://proxy.internal:8083 --api-key $KEY`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().StringVar(&cancelFlags.target, "target", "http://localhost:8083", "proxy URL")
	cancelCmd.Flags().StringVar(&cancelFlags.apiKey, "api-key", "", "client API key, when the proxy validates one")
	cancelCmd.Flags().DurationVar(&cancelFlags.timeout, "timeout", 10*time.Second, "request timeout")
}

func runCancel(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cancelFlags.timeout)
	defer cancel()

	result, err := cancelRequest(ctx, http.DefaultClient, cancelFlags.target, cancelFlags.apiKey, args[0])
	if err != nil {
		return cli.NewCommandError("cancel", err)
	}
	return f.FormatTo(cmd.OutOrStdout(), result)
}

// cancelRequest calls the proxy's cancel endpoint for id.
func cancelRequest(ctx context.Context, client *http.Client, target, apiKey, id string) (cli.Fields, error) {
	endpoint := strings.TrimRight(target, "/") + "/v1/requests/" + url.PathEscape(id) + "/cancel"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s (%d %s)", apiErr.Error.Message, resp.StatusCode, apiErr.Error.Type)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		ID        string `json:"id"`
		Cancelled bool   `json:"cancelled"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return cli.Fields{
		{Key: "id", Value: out.ID},
		{Key: "cancelled", Value: out.Cancelled},
	}, nil
}
