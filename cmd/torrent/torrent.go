package torrent

import (
	"github.com/spf13/cobra"
)

// AddCommands ...
func AddCommands(parent *cobra.Command) {
	torrentCmd := &cobra.Command{
		Use:   `torrent`,
		Short: `Torrent file related commands`,
	}
	parent.AddCommand(torrentCmd)

	dumpCmd := &cobra.Command{
		Use:   `dump <torrent-file>`,
		Short: `Dump the contents of a torrent file as yaml.`,
		Args:  cobra.ExactArgs(1),
		RunE:  dumpFile,
	}
	dumpCmd.Flags().Bool(`piece-hashes`, false, `also dump piece hashes and piece layers`)
	torrentCmd.AddCommand(dumpCmd)

	infoHashCmd := &cobra.Command{
		Use:   `info-hash <torrent-file>...`,
		Short: `Print the info-hashes of torrent files.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  infoHash,
	}
	torrentCmd.AddCommand(infoHashCmd)

	createCmd := &cobra.Command{
		Use:   `create <path>`,
		Short: `Create a torrent file from a file or a directory, written to stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE:  createTorrent,
	}
	createCmd.Flags().String(`version`, `v1`, `v1, v2 or hybrid`)
	createCmd.Flags().Int(`piece-length`, 0, `piece length in bytes, chosen from the total size if 0`)
	createCmd.Flags().StringSliceP(`tracker`, `t`, nil, `tracker url, may be repeated`)
	createCmd.Flags().StringSlice(`web-seed`, nil, `web seed url, may be repeated`)
	createCmd.Flags().String(`comment`, ``, `comment`)
	createCmd.Flags().Bool(`private`, false, `mark the torrent as private`)
	createCmd.Flags().Bool(`progress`, true, `show hashing progress on stderr`)
	torrentCmd.AddCommand(createCmd)

	verifyCmd := &cobra.Command{
		Use:   `verify <torrent-file> <data-dir>`,
		Short: `Check downloaded data against the piece hashes.`,
		Args:  cobra.ExactArgs(2),
		RunE:  verifyTorrent,
	}
	verifyCmd.Flags().Bool(`progress`, true, `show progress on stderr`)
	torrentCmd.AddCommand(verifyCmd)
}
