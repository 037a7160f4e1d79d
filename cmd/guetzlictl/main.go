// guetzlictl is a small command line client for the guetzlid image API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/speexx/guetzli-service/cmd/guetzlictl/commands"
)

func main() {
	root := &cobra.Command{
		Use:   "guetzlictl",
		Short: "Client for the guetzlid image recompression service",
		Long: `guetzlictl talks to a running guetzlid server.

Examples:
  # Upload a JPEG and print its content id
  guetzlictl upload photo.jpg

  # Watch the job
  guetzlictl meta <id>

  # Fetch the recompressed image once transformed
  guetzlictl get <id> -o smaller.jpg`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("server", "s", "http://localhost:8080", "Base URL of the guetzlid server")

	root.AddCommand(
		commands.NewUploadCommand(),
		commands.NewListCommand(),
		commands.NewMetaCommand(),
		commands.NewGetCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
