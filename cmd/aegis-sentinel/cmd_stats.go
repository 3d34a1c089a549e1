package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ghalamif/AegisSentinel/internal/adapters/journal"
	"github.com/ghalamif/AegisSentinel/internal/adapters/observability"
	"github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

// watched are the series printed from a live engine's metrics endpoint.
var watched = []string{
	observability.TelemetryReceived,
	observability.TelemetryDropped,
	observability.IncidentsReported,
	observability.QueueLength,
	observability.PendingApprovals,
	observability.ReportDLQ,
}

func newStatsCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print journal statistics and, with --url, live engine counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := sentinel.LoadConfig(configPath)
			if err != nil {
				return err
			}
			stats, err := journal.Scan(cfg.Journal.Dir, 0, nil)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			unreported := uint64(0)
			if stats.LatestAppended >= stats.OldestUnreported {
				unreported = uint64(stats.LatestAppended - stats.OldestUnreported + 1)
			}
			fmt.Fprintf(out, "journal %s: %s entries, %s unreported, %s on disk (limit %s)\n",
				cfg.Journal.Dir,
				humanize.Comma(int64(stats.LatestAppended)),
				humanize.Comma(int64(unreported)),
				humanize.Bytes(uint64(stats.SizeBytes)),
				humanize.Bytes(uint64(cfg.Policy.MaxJournalSizeBytes)),
			)

			if url == "" {
				return nil
			}
			if interval <= 0 {
				return printMetricsSnapshot(cmd.Context(), out, url)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := printMetricsSnapshot(ctx, out, url); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Prometheus metrics endpoint of a running engine, e.g. http://localhost:9100/metrics")
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval; 0 prints once")
	return cmd
}

func printMetricsSnapshot(ctx context.Context, out io.Writer, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	fmt.Fprintf(out, "[%s]", time.Now().Format(time.RFC3339))
	for _, name := range watched {
		fmt.Fprintf(out, " %s=%s", name, humanize.Ftoa(sumFamily(families[name])))
	}
	fmt.Fprintln(out)
	return nil
}

// sumFamily adds every series of a counter or gauge family.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		}
	}
	return total
}
