package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/session"
)

var chartOut string

// queryCmd asks one question about the persisted dataset
var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Ask a question about the persisted dataset",
	Long: `Routes the prompt exactly like POST /query/. Text answers are printed;
charts are written as PNG to --out.

Examples:
  campaign-insights query "Which campaign had the highest spend?"
  campaign-insights query -o spend.png "plot spend by date"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("prompt is empty")
	}

	a, err := newApp(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	handle, err := a.sessions.Acquire(cmd.Context())
	if errors.Is(err, session.ErrNoDataset) {
		return errors.New("No concatenated file found.")
	}
	if err != nil {
		return err
	}
	defer handle.Release()

	resp, err := a.router.Route(cmd.Context(), handle, prompt)
	if err != nil {
		logger.Error("query failed", zap.String("prompt", prompt), zap.Error(err))
		return fmt.Errorf("Error processing query: %w", err)
	}

	out := cmd.OutOrStdout()
	if resp.Image != "" {
		png, err := base64.StdEncoding.DecodeString(resp.Image)
		if err != nil {
			return fmt.Errorf("decoding chart: %w", err)
		}
		if err := os.WriteFile(chartOut, png, 0644); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
		fmt.Fprintf(out, "%s Saved to %s\n", resp.Response, chartOut)
		return nil
	}
	fmt.Fprintln(out, resp.Response)
	return nil
}
