package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewUploadCommand returns the `upload` subcommand.
func NewUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image for recompression",
		Long: `Upload a JPEG or PNG image and print its content id.

The server recompresses the image asynchronously; use 'guetzlictl meta'
to follow the job and 'guetzlictl get' to fetch the result.

Examples:
  guetzlictl upload photo.jpg
  guetzlictl upload -s http://imgsvc:8080 scan.png`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]

	mime, err := mimeForFile(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	id, err := clientFromCommand(cmd).Upload(f, info.Size(), mime, filepath.Base(path))
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

// mimeForFile maps the file extension to one of the accepted types.
func mimeForFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	default:
		return "", fmt.Errorf("unsupported file type %q (need .jpg, .jpeg or .png)", filepath.Ext(path))
	}
}
