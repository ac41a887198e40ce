package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shandysiswandi/gostage/internal/ingest/outbound"
	"github.com/shandysiswandi/gostage/internal/ingest/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with table schemas",
	}
	cmd.AddCommand(newSchemaDetectCmd(opts))
	return cmd
}

func newSchemaDetectCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Ask the storage service for the schema of a file",
		Long: `Detect the schema of a file and print it as YAML. The output can be
edited and passed back with "gostage upload --schema".

Examples:
  gostage schema detect events.csv
  gostage schema detect events.csv -o events.schema.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := outbound.NewHTTPClient(outbound.HTTPConfig{
				BaseURL:       opts.cfg.GetString("collaborator.base_url"),
				Timeout:       opts.cfg.GetDuration("collaborator.timeout"),
				UploadTimeout: opts.cfg.GetDuration("collaborator.upload_timeout"),
			})
			if err != nil {
				return err
			}

			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return err
			}

			schema, err := client.DetectSchema(cmd.Context(), filepath.Base(path), store.NewFileContent(path))
			if err != nil {
				return fmt.Errorf("schema detection failed for %s: %w", filepath.Base(path), err)
			}

			raw, err := yaml.Marshal(schema)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("✓"), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to this file")
	return cmd
}
