package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCommand returns the `list` subcommand.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all content ids known to the server",
		Long: `List the content ids of every stored image, one per line.

Examples:
  guetzlictl list
  guetzlictl list | xargs -n1 guetzlictl meta`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	ids, err := clientFromCommand(cmd).List()
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No images stored.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
