package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewMetaCommand returns the `meta` subcommand.
func NewMetaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta <id>",
		Short: "Show the metadata record of an image",
		Long: `Show the processing state and the source and target details of
an uploaded image.

Examples:
  guetzlictl meta 0123456789abcdef0123456789abcdef
  guetzlictl meta --json 0123456789abcdef0123456789abcdef`,
		Args: cobra.ExactArgs(1),
		RunE: runMeta,
	}
	cmd.Flags().Bool("json", false, "Print the raw metadata JSON")
	return cmd
}

func runMeta(cmd *cobra.Command, args []string) error {
	meta, err := clientFromCommand(cmd).GetMeta(args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}

	fmt.Printf("Content ID: %s\n", meta.ContentID)
	fmt.Printf("Status:     %s\n", meta.Status)
	if meta.Source.Name != "" {
		fmt.Printf("Name:       %s\n", meta.Source.Name)
	}
	fmt.Printf("Source:     %s, quality %d, %d bytes\n",
		meta.Source.MIME, meta.Source.QualityLevel, meta.Source.Size)
	if meta.Target != nil {
		fmt.Printf("Target:     quality %d, %d bytes\n",
			meta.Target.QualityLevel, meta.Target.Size)
	}
	return nil
}
