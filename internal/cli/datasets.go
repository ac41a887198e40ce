package cli

import (
	"github.com/spf13/cobra"
)

func newDatasetsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets and tables known to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.close()

			datasets, err := s.module.Usecase.RefreshDatasets(cmd.Context())
			if err != nil {
				return reportError(cmd.OutOrStdout(), "catalog unavailable", err)
			}

			printDatasets(cmd.OutOrStdout(), datasets)
			return nil
		},
	}
}
