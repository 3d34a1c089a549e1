package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ghalamif/AegisSentinel/internal/adapters/journal"
	"github.com/ghalamif/AegisSentinel/internal/adapters/sink"
	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
	"github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

func newJournalCmd() *cobra.Command {
	var (
		machine    string
		limit      int
		unreported bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent incidents from the local history or the decision journal",
		Long: "Lists the newest incidents first. When an sqlite section is configured the " +
			"history database is read; otherwise, or with --unreported, the decision journal is scanned.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sentinel.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = 20
			}

			var incidents []domain.Incident
			if cfg.SQLite != nil && !unreported {
				store, err := sink.OpenSQLite(cfg.SQLite.Path)
				if err != nil {
					return err
				}
				defer store.Close()
				if incidents, err = store.Recent(cmd.Context(), machine, limit); err != nil {
					return err
				}
			} else if incidents, err = scanJournal(cfg.Journal.Dir, machine, limit, unreported); err != nil {
				return err
			}

			printIncidents(cmd.OutOrStdout(), incidents)
			return nil
		},
	}
	cmd.Flags().StringVarP(&machine, "machine", "m", "", "only incidents for this machine id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of incidents to print")
	cmd.Flags().BoolVar(&unreported, "unreported", false, "only journal entries not yet delivered to every sink")
	return cmd
}

// scanJournal keeps the newest limit matching entries, newest first.
func scanJournal(dir, machine string, limit int, unreported bool) ([]domain.Incident, error) {
	var (
		kept []domain.Incident
		from ports.JournalEntryID
	)
	if unreported {
		stats, err := journal.Scan(dir, 0, nil)
		if err != nil {
			return nil, err
		}
		from = stats.OldestUnreported
	}
	_, err := journal.Scan(dir, from, func(_ ports.JournalEntryID, inc *domain.Incident) error {
		if machine != "" && inc.MachineID != machine {
			return nil
		}
		kept = append(kept, *inc)
		if len(kept) > limit {
			kept = kept[1:]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, nil
}

func printIncidents(out io.Writer, incidents []domain.Incident) {
	if len(incidents) == 0 {
		fmt.Fprintln(out, "no incidents")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tMACHINE\tTYPE\tSEVERITY\tTIER\tACTION\tSTATUS")
	for _, inc := range incidents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inc.ID,
			humanize.Time(inc.Timestamp),
			inc.MachineID,
			inc.Type,
			inc.Severity,
			inc.Tier,
			inc.Action,
			inc.Status,
		)
	}
	_ = tw.Flush()
}
