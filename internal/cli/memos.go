package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

func newMemosCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memos",
		Short: "Browse ingested memos",
	}
	cmd.AddCommand(newMemosListCommand(cfg))
	cmd.AddCommand(newMemosShowCommand(cfg))
	cmd.AddCommand(newMemosEditCommand(cfg))
	return cmd
}

func newMemosListCommand(cfg *config.Config) *cobra.Command {
	filter := storage.MemoFilter{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cfg, func(store storage.Store) error {
				page, err := store.ListMemos(cmd.Context(), filter)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDATE\tENGINEER\tSEVERITY\tSUMMARY")
				for _, m := range page.Items {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						m.ID, m.LoggedAt.Format("2006-01-02"), m.Engineer, m.TopSeverity, m.Summary)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&filter.Engineer, "engineer", "", "Only memos by this engineer")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Case-insensitive text search")
	cmd.Flags().StringVar(&filter.Severity, "severity", "", "Only memos with this top severity")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of memos")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "Page number")
	return cmd
}

func newMemosShowCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a memo with its derived events as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return usagef("invalid memo id %q", args[0])
			}
			return withStore(cfg, func(store storage.Store) error {
				detail, err := store.GetMemo(cmd.Context(), id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			})
		},
	}
}

// memoEditFlags maps edit flags onto the text fields of a MemoUpdate.
var memoEditFlags = []struct {
	name  string
	usage string
	field func(*storage.MemoUpdate) **string
}{
	{"engineer", "Engineer who logged the memo", func(u *storage.MemoUpdate) **string { return &u.Engineer }},
	{"activity-type", "Activity type", func(u *storage.MemoUpdate) **string { return &u.ActivityType }},
	{"summary", "Summary line", func(u *storage.MemoUpdate) **string { return &u.Summary }},
	{"system-performance", "System performance notes", func(u *storage.MemoUpdate) **string { return &u.SystemPerformance }},
	{"maintenance-done", "Maintenance performed", func(u *storage.MemoUpdate) **string { return &u.MaintenanceDone }},
	{"issues-found", "Issues found", func(u *storage.MemoUpdate) **string { return &u.IssuesFound }},
	{"action-items", "Action items text", func(u *storage.MemoUpdate) **string { return &u.ActionItemsText }},
	{"components-affected", "Components affected", func(u *storage.MemoUpdate) **string { return &u.ComponentsAffected }},
	{"notes", "Additional notes", func(u *storage.MemoUpdate) **string { return &u.AdditionalNotes }},
	{"transcript", "Raw transcript", func(u *storage.MemoUpdate) **string { return &u.RawTranscript }},
}

func newMemosEditCommand(cfg *config.Config) *cobra.Command {
	values := make([]string, len(memoEditFlags))
	var severity, duration string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a memo's summary fields; only the given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return usagef("invalid memo id %q", args[0])
			}

			var update storage.MemoUpdate
			changed := false
			for i, f := range memoEditFlags {
				if cmd.Flags().Changed(f.name) {
					*f.field(&update) = &values[i]
					changed = true
				}
			}
			if cmd.Flags().Changed("severity") {
				sev := types.NormalizeSeverity(severity)
				update.Severity = &sev
				changed = true
			}
			if cmd.Flags().Changed("duration") {
				// Text that is not a number clears the duration.
				update.DurationHours = types.ParseFloat(duration)
				update.ClearDuration = update.DurationHours == nil
				changed = true
			}
			if !changed {
				return usagef("nothing to edit; pass at least one field flag")
			}

			return withStore(cfg, func(store storage.Store) error {
				memo, err := store.UpdateMemo(cmd.Context(), id, update)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(memo)
			})
		},
	}
	for i, f := range memoEditFlags {
		cmd.Flags().StringVar(&values[i], f.name, "", f.usage)
	}
	cmd.Flags().StringVar(&severity, "severity", "", "Severity: Critical, High, Medium, Low or None")
	cmd.Flags().StringVar(&duration, "duration", "", "Duration in hours; empty clears it")
	return cmd
}
