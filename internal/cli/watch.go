package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/dropzone"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		settle     time.Duration
		autoCommit bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Stage files as they appear in a directory",
		Long: `Watch a directory and stage every file written to it. With --commit,
the batch is committed after each settled group has been enriched. A batch
with incomplete metadata is refused, reported and kept staged.

Examples:
  gostage watch ./dropzone
  gostage watch ./dropzone --commit --settle 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.session(ctx, nil)
			if err != nil {
				return err
			}
			defer s.close()

			uc := s.module.Usecase
			out := cmd.OutOrStdout()
			printBanner(out, uc.Limits())

			w, err := dropzone.NewWatcher(dropzone.Config{Dir: args[0], Settle: settle}, uc)
			if err != nil {
				return err
			}

			w.OnAdmit = func(res usecase.AdmitResult, err error) {
				if err != nil {
					_ = reportError(out, "not staged", err)
					return
				}
				if res.Rejected != nil {
					printDetails(out, "not staged", res.Rejected.Details())
				}
				for _, f := range res.Admitted {
					printf(out, "%s %s\n", mutedStyle.Render("+"), f.Name)
				}
				if !autoCommit {
					return
				}

				select {
				case <-res.Done:
				case <-ctx.Done():
					return
				}

				result, err := uc.Commit(ctx)
				if err != nil {
					_ = reportError(out, "commit refused", err)
					return
				}
				printCommit(out, result)
			}

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", dropzone.DefaultSettle, "quiet period before a group of files is staged")
	cmd.Flags().BoolVar(&autoCommit, "commit", false, "commit each staged group")
	return cmd
}
