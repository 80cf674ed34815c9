package main

import (
	"fmt"

	"github.com/spf13/cobra"

	_ "fnkit/internal/orders"
	"fnkit/schema"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fnkit",
		Short: "Tooling for fnkit serverless handlers",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	root.AddCommand(newGenerateSchemasCommand(schema.Default))
	return root
}

func newGenerateSchemasCommand(registry *schema.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-schemas <out-dir>",
		Short: "Write a JSON schema for every registered event type",
		Long:  `The generate-schemas command writes <type>.schema.json into out-dir for every event type registered with the schema package.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := registry.WriteAll(args[0])
			if err != nil {
				return fmt.Errorf("error generating schemas: %w", err)
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}
