package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mediagate/internal/adapters/ledger"
	"mediagate/internal/core/domain"
)

// cliClient is the rate-limit identity of local commands.
const cliClient = "cli"

var (
	flagIndex  int
	flagFormat string
	flagOut    string
	flagLimit  int
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Print metadata for a URL as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  infoRun,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a URL's media to a local directory",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchRun,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired artifacts and stale workspaces now",
	Args:  cobra.NoArgs,
	RunE:  sweepRun,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent requests from the ledger",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	fetchCmd.Flags().IntVarP(&flagIndex, "index", "i", 0, "1-based item to fetch from a multi-item post (0 = all)")
	fetchCmd.Flags().StringVarP(&flagFormat, "format", "f", "", "Format preference to try first (best, worst, 720p, or an engine selector)")
	fetchCmd.Flags().StringVarP(&flagOut, "out", "o", ".", "Output directory")
	historyCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Number of entries to show")
}

func infoRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.Info(ctx, cliClient, domain.MediaRequest{URL: args[0]})
	if err != nil {
		return cliError(err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func fetchRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.orch.Download(ctx, cliClient, domain.MediaRequest{URL: args[0], ItemIndex: flagIndex, Format: flagFormat})
	if err != nil {
		return cliError(err)
	}
	defer d.Body.Close()

	if err := os.MkdirAll(flagOut, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	dst := filepath.Join(flagOut, filepath.Base(d.Artifact.Name))
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	n, err := io.Copy(f, d.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes, %s)\n", dst, n, d.Artifact.MIME)
	for _, e := range d.Artifact.Entries {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
	}
	return nil
}

func sweepRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return a.scheduler.SweepNow(cmd.Context(), time.Now())
}

func historyRun(cmd *cobra.Command, args []string) error {
	if cfg.LedgerPath == "" {
		return fmt.Errorf("no ledger configured (set ledger_path or LEDGER_PATH)")
	}
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	events, err := l.Recent(ctx, flagLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No requests recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS\tCLIENT\tITEMS\tSIZE\tURL")
	for _, ev := range events {
		status := ev.Status
		if ev.ErrorKind != "" {
			status += " (" + ev.ErrorKind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			ev.At.Local().Format("2006-01-02 15:04:05"), ev.Type, status, ev.Client, ev.Items, ev.Size, ev.URL)
	}
	return tw.Flush()
}

// cliError shows the caller-safe message with its kind.
func cliError(err error) error {
	return fmt.Errorf("%s: %s", domain.KindOf(err), domain.MessageOf(err))
}
