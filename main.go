package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/movsb/torrentinfo/cmd/file"
	"github.com/movsb/torrentinfo/cmd/magnet"
	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/cmd/tools"
	"github.com/movsb/torrentinfo/cmd/torrent"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         `Inspect, create and verify torrent files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	shared.AddGlobalFlags(rootCmd)

	torrent.AddCommands(rootCmd)
	file.AddCommands(rootCmd)
	magnet.AddCommands(rootCmd)
	tools.AddCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
