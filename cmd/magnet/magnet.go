package magnet

import (
	"fmt"

	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/pkg/magnet"
	"github.com/spf13/cobra"
)

// AddCommands ...
func AddCommands(parent *cobra.Command) {
	magnetCmd := &cobra.Command{
		Use:   `magnet`,
		Short: `Magnet link commands`,
	}
	parent.AddCommand(magnetCmd)

	makeCmd := &cobra.Command{
		Use:   `make <torrent-file>`,
		Short: `Print the magnet link of a torrent file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := shared.Load(cmd, args[0])
			if err != nil {
				return err
			}
			uri, err := magnet.FromMetainfo(tf)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
	magnetCmd.AddCommand(makeCmd)

	parseCmd := &cobra.Command{
		Use:   `parse <uri>`,
		Short: `Show the parts of a magnet link.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := magnet.Parse(args[0])
			if err != nil {
				return err
			}
			return shared.Print(cmd, m)
		},
	}
	magnetCmd.AddCommand(parseCmd)
}
