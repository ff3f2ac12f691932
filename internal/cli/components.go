package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/importer"
	"github.com/scrypster/fieldmemo/internal/notify"
	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage"
)

func newComponentsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Manage the canonical component registry",
	}
	cmd.AddCommand(newComponentsImportCommand(cfg))
	cmd.AddCommand(newComponentsListCommand(cfg))
	cmd.AddCommand(newComponentsResolveCommand(cfg))
	return cmd
}

func newComponentsImportCommand(cfg *config.Config) *cobra.Command {
	var noNotify bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update components from a YAML registry file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := importer.LoadComponentsFile(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(store storage.Store) error {
				result, err := importer.ImportComponents(cmd.Context(), store, file)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created %d, updated %d, skipped %d\n", result.Created, result.Updated, result.Skipped)
				for _, msg := range result.Errors {
					fmt.Fprintf(out, "  %s\n", msg)
				}

				// A running API server rebuilds its resolver on this event.
				if !noNotify && result.Created+result.Updated > 0 {
					notify.NewEventWriter(cfg.Storage.DataPath).NotifyComponentsChanged(notify.RegistryEvent{
						Action:  "imported",
						Created: result.Created,
						Updated: result.Updated,
					})
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "Do not tell a running API server about the change")
	return cmd
}

func newComponentsListCommand(cfg *config.Config) *cobra.Command {
	var all, prompt bool
	var subsystem string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cfg, func(store storage.Store) error {
				if prompt {
					return printPromptList(cmd, store, subsystem)
				}

				components, err := store.ListComponents(cmd.Context(), storage.ComponentFilter{
					IncludeInactive: all,
					Subsystem:       subsystem,
				})
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tPART\tSUBSYSTEM\tACTIVE\tALIASES")
				for _, c := range components {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
						c.CanonicalName, c.PartNumber, c.Subsystem, c.Active, strings.Join(c.Aliases, ", "))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive components")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Print the component list handed to the extractor")
	cmd.Flags().StringVar(&subsystem, "subsystem", "", "Only list components of this subsystem")
	return cmd
}

// printPromptList prints the component list the extractor is given, built from
// the same resolver snapshot that ingestion validates against.
func printPromptList(cmd *cobra.Command, store storage.Store, subsystem string) error {
	res := resolver.New(store)
	if err := res.Refresh(cmd.Context()); err != nil {
		return err
	}

	components := res.Components(cmd.Context())
	if subsystem != "" {
		filtered := components[:0]
		for _, c := range components {
			if c.Subsystem == subsystem {
				filtered = append(filtered, c)
			}
		}
		components = filtered
	}

	fmt.Fprintln(cmd.OutOrStdout(), extraction.ComponentList(components))
	return nil
}

func newComponentsResolveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <mention>...",
		Short: "Show the canonical component each mention resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(store storage.Store) error {
				res := resolver.New(store)
				if err := res.Refresh(cmd.Context()); err != nil {
					return err
				}
				for _, c := range res.Collisions() {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: key %q maps to %q (dropped) and %q (kept)\n", c.Key, c.Loser, c.Winner)
				}

				out := cmd.OutOrStdout()
				for _, mention := range args {
					if canonical, ok := res.Resolve(cmd.Context(), mention); ok {
						fmt.Fprintf(out, "%s\t%s\n", mention, canonical)
					} else {
						fmt.Fprintf(out, "%s\t(unmatched)\n", mention)
					}
				}
				return nil
			})
		},
	}
}
