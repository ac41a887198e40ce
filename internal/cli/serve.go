package cli

import (
	"context"
	"time"

	"github.com/shandysiswandi/gostage/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the staging HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			application := app.New(opts.cfg)
			wait := application.Start()
			<-wait

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			application.Stop(ctx)
			return nil
		},
	}
}
