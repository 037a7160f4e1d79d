package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewGetCommand returns the `get` subcommand.
func NewGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download an image",
		Long: `Download the recompressed image, or the original upload with
--source. Writes to stdout unless -o is given.

Examples:
  guetzlictl get <id> -o smaller.jpg
  guetzlictl get --source <id> > original.png`,
		Args: cobra.ExactArgs(1),
		RunE: runGet,
	}
	cmd.Flags().Bool("source", false, "Download the original upload instead of the transformed image")
	cmd.Flags().StringP("output", "o", "", "Write the image to this file instead of stdout")
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	id := args[0]

	var w io.Writer = os.Stdout
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	c := clientFromCommand(cmd)
	if source, _ := cmd.Flags().GetBool("source"); source {
		return c.DownloadSource(id, w)
	}
	return c.DownloadTarget(id, w)
}
