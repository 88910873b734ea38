package bencode

import (
	"io"
	"os"

	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/pkg/bencode"
	"github.com/spf13/cobra"
)

func decode(cmd *cobra.Command, args []string) error {
	var r io.Reader
	path := args[0]
	switch path {
	case "-":
		r = cmd.InOrStdin()
	default:
		fp, err := os.Open(path)
		if err != nil {
			return err
		}
		defer fp.Close()
		r = fp
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	maxDepth, _ := cmd.Flags().GetInt(`max-depth`)
	root, err := bencode.Decode(buf, bencode.WithMaxDepth(maxDepth))
	if err != nil {
		return err
	}

	return shared.Print(cmd, shared.ToYAML(root, nil))
}
