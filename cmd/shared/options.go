// Package shared holds the flags and helpers every command uses.
package shared

import (
	"log/slog"
	"os"

	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// AddGlobalFlags ...
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String(`config`, ``, `yaml file with parser settings`)
	root.PersistentFlags().BoolP(`verbose`, `v`, false, `log debug messages to stderr`)
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose, _ := cmd.Flags().GetBool(`verbose`); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	}
}

// Options builds parser options from the global flags.
func Options(cmd *cobra.Command) ([]torrent.Option, error) {
	opts := []torrent.Option{
		torrent.WithLogger(slog.Default()),
	}
	if path, _ := cmd.Flags().GetString(`config`); path != `` {
		s, err := torrent.LoadSettingsFile(path)
		if err != nil {
			return nil, err
		}
		slog.Debug(`loaded settings`, slog.String(`path`, path))
		opts = append(opts, torrent.WithSettings(s))
	}
	return opts, nil
}

// Load parses the torrent file at path with the global settings.
func Load(cmd *cobra.Command, path string) (*torrent.Metainfo, error) {
	opts, err := Options(cmd)
	if err != nil {
		return nil, err
	}
	return torrent.ParseFile(path, opts...)
}

// Print writes v as YAML to the command's output.
func Print(cmd *cobra.Command, v interface{}) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
