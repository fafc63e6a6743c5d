// Package client contains Cobra CLI commands that talk to a running relay.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewAskCommand constructs the `ask` command: submit a query and print the
// streamed tokens as they arrive.
func NewAskCommand(baseURL BaseURLFunc) *cobra.Command {
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Submit a prompt and stream the response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, _ := cmd.Flags().GetString("query")
			uuid, _ := cmd.Flags().GetString("uuid")

			body, err := json.Marshal(map[string]string{"query": query, "uuid": uuid})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, baseURL()+"/ask", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				var e struct {
					Error string `json:"error"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&e)
				if e.Error == "" {
					e.Error = resp.Status
				}
				return fmt.Errorf("ask failed: %s", e.Error)
			}
			return printStream(cmd, resp)
		},
	}
	askCmd.Flags().StringP("query", "q", "", "Prompt to submit")
	askCmd.Flags().String("uuid", "", "Correlation id (optional; server assigns one)")
	_ = askCmd.MarkFlagRequired("query")
	return askCmd
}

// printStream reads SSE frames and writes tokens to stdout until the
// terminal frame. A non-done ending becomes the command's error.
func printStream(cmd *cobra.Command, resp *http.Response) error {
	out := cmd.OutOrStdout()
	first := true
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			var payload struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
				continue
			}
			if !first {
				fmt.Fprint(out, " ")
			}
			fmt.Fprint(out, payload.Token)
			first = false
		case line == "event: done":
			fmt.Fprintln(out)
			return nil
		case strings.HasPrefix(line, "event: ") && line != "event: message":
			fmt.Fprintln(out)
			return fmt.Errorf("stream ended: %s", strings.TrimPrefix(line, "event: "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed without a completion marker")
}
