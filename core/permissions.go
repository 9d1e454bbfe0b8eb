package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"example.com/sharecore/pkg/permissions"
)

func newPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "Print the capture and media permission state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(permissions.NewChecker().Check())
		},
	}
}
