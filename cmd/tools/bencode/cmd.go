package bencode

import "github.com/spf13/cobra"

// AddCommands ...
func AddCommands(parent *cobra.Command) {
	bencodeCmd := &cobra.Command{
		Use:   `bencode`,
		Short: `Bencode tools`,
	}
	parent.AddCommand(bencodeCmd)

	decodeCmd := &cobra.Command{
		Use:   `decode <file|->`,
		Short: `Decode bencode from file, or stdin if file is -.`,
		Args:  cobra.ExactArgs(1),
		RunE:  decode,
	}
	decodeCmd.Flags().Int(`max-depth`, 0, `maximum nesting depth, the default limit if 0`)
	bencodeCmd.AddCommand(decodeCmd)
}
