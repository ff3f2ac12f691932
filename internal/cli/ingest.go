package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/fieldmemo/internal/attribution"
	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/notify"
	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage"
)

type ingestOptions struct {
	Payload    string
	Transcript string
	Engineer   string
	Source     string
	Date       string
	NoNotify   bool
}

func newIngestCommand(cfg *config.Config) *cobra.Command {
	opts := ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one extraction payload as a memo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "Extraction payload file (JSON, '-' for stdin)")
	cmd.Flags().StringVar(&opts.Transcript, "transcript", "", "Transcript text file")
	cmd.Flags().StringVar(&opts.Engineer, "engineer", "", "Engineer who recorded the memo (default: FIELDMEMO_ENGINEER or git user.name)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Source label, e.g. the recording file name")
	cmd.Flags().StringVar(&opts.Date, "date", "", "Effective date (YYYY-MM-DD), defaults to now")
	cmd.Flags().BoolVar(&opts.NoNotify, "no-notify", false, "Do not publish the ingestion to a running API server")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, opts ingestOptions) error {
	raw, err := readInput(cmd, opts.Payload)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	req := ingest.Request{
		Payload:     extraction.Parse(raw),
		Engineer:    opts.Engineer,
		SourceLabel: opts.Source,
	}
	if req.Engineer == "" {
		req.Engineer = attribution.DetectEngineer()
	}
	if req.SourceLabel == "" && opts.Payload != "-" {
		req.SourceLabel = opts.Payload
	}
	if opts.Transcript != "" {
		text, err := os.ReadFile(opts.Transcript)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		req.Transcript = string(text)
	}
	if opts.Date != "" {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(opts.Date))
		if err != nil {
			return usagef("invalid --date %q: want YYYY-MM-DD", opts.Date)
		}
		req.EffectiveDate = &date
	}

	return withStore(cfg, func(store storage.Store) error {
		writerOpts := []ingest.Option{
			ingest.WithBreaker(ingest.BreakerConfig{
				MaxFailures: uint32(max(cfg.Ingest.BreakerMaxFailures, 0)),
				Timeout:     cfg.Ingest.BreakerTimeout,
			}),
		}
		if !opts.NoNotify {
			writerOpts = append(writerOpts, ingest.WithNotifier(notify.NewEventWriter(cfg.Storage.DataPath)))
		}
		writer := ingest.NewWriter(store, resolver.New(store), writerOpts...)
		result, err := writer.Ingest(cmd.Context(), req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	})
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
