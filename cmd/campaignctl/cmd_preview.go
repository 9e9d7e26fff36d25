package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

var previewFilePath string

// previewCmd renders a template against a sample contact without touching the database
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a message template against a sample contact",
	Long: `Preview reads message_template, template_mappings and sample_contact
from a YAML file and prints the rendered text with the placeholders that
have no mapping.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd.OutOrStdout(), previewFilePath)
	},
}

func runPreview(out io.Writer, path string) error {
	var req service.PreviewRequest
	if err := decodeYAMLFile(path, &req); err != nil {
		return err
	}

	renderer := service.NewDispatchService(service.DispatchDeps{
		Templates: service.NewTemplateService(),
	}, service.DispatchConfig{}, zerolog.Nop())

	res, err := renderer.PreviewRender(&req)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func init() {
	previewCmd.Flags().StringVarP(&previewFilePath, "file", "f", "", "YAML file with the template and sample contact")
	_ = previewCmd.MarkFlagRequired("file")
}
