package torrent

import (
	"fmt"
	"os"

	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/pkg/bencode"
	"github.com/spf13/cobra"
)

func dumpFile(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	root, err := bencode.Decode(buf)
	if err != nil {
		return err
	}

	hasPieceHashes, _ := cmd.Flags().GetBool(`piece-hashes`)
	skip := func(path []string) bool {
		if hasPieceHashes {
			return false
		}
		switch {
		case len(path) == 2 && path[0] == `info` && path[1] == `pieces`:
			return true
		case len(path) == 1 && path[0] == `piece layers`:
			return true
		}
		return false
	}

	return shared.Print(cmd, shared.ToYAML(root, skip))
}

func infoHash(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		tf, err := shared.Load(cmd, path)
		if err != nil {
			return fmt.Errorf(`%s: %w`, path, err)
		}
		ih := tf.InfoHashes()
		switch {
		case ih.HasV1() && ih.HasV2():
			fmt.Fprintln(cmd.OutOrStdout(), ih.V1, ih.V2, path)
		case ih.HasV1():
			fmt.Fprintln(cmd.OutOrStdout(), ih.V1, path)
		default:
			fmt.Fprintln(cmd.OutOrStdout(), ih.V2, path)
		}
	}
	return nil
}
