package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/store"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type uploadFlags struct {
	dataset    string
	table      string
	mode       string
	schemaPath string
	noProgress bool
}

func newUploadCmd(opts *options) *cobra.Command {
	flags := &uploadFlags{}

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Stage files and commit them as one batch",
		Long: `Stage the given files, let the storage service guess their metadata,
apply the flags on top of the guess and commit the batch.

Flags apply to every file. A dataset that differs from the guessed one
discards the guessed table and write mode, so pass --table and --mode with it.

Examples:
  gostage upload sales_2024.csv
  gostage upload events.csv --dataset web --table events --mode Append
  gostage upload events.csv --dataset web --table events --mode Merge --schema events.schema.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.dataset, "dataset", "", "target dataset")
	cmd.Flags().StringVar(&flags.table, "table", "", "target table")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "write mode (Append, Merge, Overwrite)")
	cmd.Flags().StringVar(&flags.schemaPath, "schema", "", "YAML schema file")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "hide progress bars")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *options, flags *uploadFlags, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	patch, err := flags.patch()
	if err != nil {
		return err
	}

	var observer usecase.ProgressObserver
	if !flags.noProgress {
		observer = newBarObserver(cmd.ErrOrStderr())
	}

	s, err := opts.session(ctx, observer)
	if err != nil {
		return err
	}
	defer s.close()

	uc := s.module.Usecase
	printBanner(out, uc.Limits())

	incoming, err := localFiles(args)
	if err != nil {
		return err
	}

	admitted, err := uc.Admit(ctx, incoming)
	if err != nil {
		return reportError(out, "nothing staged", err)
	}
	if admitted.Rejected != nil {
		printDetails(out, "not staged", admitted.Rejected.Details())
	}

	select {
	case <-admitted.Done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !patch.IsEmpty() {
		for _, f := range admitted.Admitted {
			if _, err := uc.UpdateMetadata(ctx, f.ID, patch); err != nil {
				return reportError(out, "invalid metadata for "+f.Name, err)
			}
		}
	}

	res, err := uc.Commit(ctx)
	if err != nil {
		return reportError(out, "commit refused", err)
	}

	printCommit(out, res)
	if !res.Succeeded() {
		return fmt.Errorf("%d of %d uploads failed", len(res.Failed), len(res.Failed)+len(res.Committed))
	}
	return nil
}

func (f *uploadFlags) patch() (entity.PartialMetadata, error) {
	var patch entity.PartialMetadata
	if f.dataset != "" {
		patch.Dataset = entity.Ptr(f.dataset)
	}
	if f.table != "" {
		patch.Table = entity.Ptr(f.table)
	}
	if f.mode != "" {
		mode := entity.WriteMode(f.mode)
		if !mode.Valid() {
			return patch, fmt.Errorf("unknown write mode %q", f.mode)
		}
		patch.WriteMode = &mode
	}
	if f.schemaPath != "" {
		schema, err := readSchemaFile(f.schemaPath)
		if err != nil {
			return patch, err
		}
		patch.Schema = schema
	}
	return patch, nil
}

func readSchemaFile(path string) (*entity.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var schema entity.Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	if schema.Columns == nil {
		return nil, fmt.Errorf("schema %s has no columns", path)
	}
	return &schema, nil
}

func localFiles(paths []string) ([]entity.IncomingFile, error) {
	incoming := make([]entity.IncomingFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", p)
		}
		incoming = append(incoming, entity.IncomingFile{
			Name:    filepath.Base(p),
			Size:    info.Size(),
			Content: store.NewFileContent(p),
		})
	}
	return incoming, nil
}

// reportError prints the per-file details of err and returns it.
func reportError(w io.Writer, title string, err error) error {
	var gerr *pkgerror.Error
	if errors.As(err, &gerr) {
		if details := gerr.Details(); len(details) > 0 {
			printDetails(w, title+": "+gerr.Msg(), details)
			return errors.New(gerr.Msg())
		}
	}
	return fmt.Errorf("%s: %w", title, err)
}
