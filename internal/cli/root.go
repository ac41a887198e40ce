// Package cli is the gostage command line: the HTTP service plus one-shot
// staging commands that talk to the same collaborators.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shandysiswandi/gostage/internal/app"
	"github.com/shandysiswandi/gostage/internal/ingest"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgconfig"
	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgroutine"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type options struct {
	configPath string
	logLevel   string
	baseURL    string

	cfg *pkgconfig.Viper
}

// Execute runs the command line with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "gostage",
		Short: "Stage files with metadata and commit them to storage",
		Long: `gostage stages a batch of files, enriches each one with a guessed
dataset, table and write mode, and commits the batch to the storage service.

Examples:
  gostage serve
  gostage upload sales_2024.csv events.csv --dataset web --table events --mode Append
  gostage schema detect events.csv -o events.schema.yaml
  gostage watch ./dropzone --commit`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", app.ConfigPath(), "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "storage service base url")

	root.AddCommand(
		newServeCmd(opts),
		newUploadCmd(opts),
		newDatasetsCmd(opts),
		newSchemaCmd(opts),
		newWatchCmd(opts),
	)

	return root
}

// load reads the config file; flags win over file and environment.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.logLevel != "" {
		cfg.Set("log.level", o.logLevel)
	}
	if o.baseURL != "" {
		cfg.Set("collaborator.base_url", o.baseURL)
	}

	o.cfg = cfg

	if cmd.Name() != "serve" {
		pkglog.InitLoggingTo(cmd.ErrOrStderr(), cfg.GetString("log.level"))
	}
	return nil
}

// session wires a staging session for one command run.
type session struct {
	module *ingest.Module
	runner *pkgroutine.Manager
}

func (o *options) session(ctx context.Context, observer usecase.ProgressObserver) (*session, error) {
	runner := pkgroutine.NewManager(100)
	m, err := ingest.Build(ingest.Dependency{
		Config:    o.cfg,
		Goroutine: runner,
		Context:   ctx,
		Observer:  observer,
	})
	if err != nil {
		return nil, err
	}
	return &session{module: m, runner: runner}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.runner.Wait()
	_ = s.module.Close(ctx)
}

func printf(w io.Writer, format string, args ...any) {
	//nolint:errcheck // terminal output
	fmt.Fprintf(w, format, args...)
}
