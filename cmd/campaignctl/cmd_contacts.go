package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

// contactsFile is the import format: one or more lists with their contacts
type contactsFile struct {
	Lists []*service.ImportListRequest `yaml:"lists"`
}

var contactsFilePath string

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage recipient lists",
}

var contactsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import recipient lists from a YAML file",
	Long: `Import creates each list if it does not exist and upserts its contacts.

Example file:

  lists:
    - id: list-a
      name: Newsletter
      contacts:
        - id: c1
          email: ana@example.com
          fields: {first_name: Ana}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		var file contactsFile
		if err := decodeYAMLFile(contactsFilePath, &file); err != nil {
			return err
		}
		if len(file.Lists) == 0 {
			return fmt.Errorf("%s contains no lists", contactsFilePath)
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			results := make([]*service.ImportListResult, 0, len(file.Lists))
			for _, list := range file.Lists {
				res, err := a.ListSvc.Import(ctx, companyID, list)
				if err != nil {
					return fmt.Errorf("list %s: %w", list.ID, err)
				}
				results = append(results, res)
			}
			return printJSON(cmd.OutOrStdout(), results)
		})
	},
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the company's recipient lists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			lists, err := a.ListSvc.ListByCompany(ctx, companyID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lists)
		})
	},
}

func init() {
	contactsImportCmd.Flags().StringVarP(&contactsFilePath, "file", "f", "", "YAML file with lists to import")
	_ = contactsImportCmd.MarkFlagRequired("file")

	contactsCmd.AddCommand(contactsImportCmd, contactsListCmd)
}
