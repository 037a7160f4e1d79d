// Package commands implements the guetzlictl subcommands.
package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/speexx/guetzli-service/pkg/apiclient"
)

// clientFromCommand builds an API client from the persistent --server flag.
func clientFromCommand(cmd *cobra.Command) *apiclient.Client {
	server, _ := cmd.Flags().GetString("server")
	return apiclient.New(strings.TrimRight(server, "/"))
}
