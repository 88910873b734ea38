package torrent

import (
	"log/slog"
	"time"

	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func createTorrent(cmd *cobra.Command, args []string) error {
	c, err := torrent.NewCreator(args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	versionName, _ := flags.GetString(`version`)
	if c.Version, err = torrent.ParseVersion(versionName); err != nil {
		return err
	}
	c.PieceLength, _ = flags.GetInt(`piece-length`)
	c.Trackers, _ = flags.GetStringSlice(`tracker`)
	c.WebSeeds, _ = flags.GetStringSlice(`web-seed`)
	c.Comment, _ = flags.GetString(`comment`)
	c.Private, _ = flags.GetBool(`private`)
	c.CreatedBy = `torrentinfo`
	c.CreationDate = time.Now().Unix()

	if progress, _ := flags.GetBool(`progress`); progress {
		var total int64
		for _, f := range c.Files {
			total += f.Size
		}
		bar := progressbar.DefaultBytes(total, `hashing`)
		defer bar.Close()
		c.Progress = bar
	}

	slog.Debug(`creating torrent`,
		slog.String(`name`, c.Name),
		slog.Int(`files`, len(c.Files)),
		slog.String(`version`, c.Version.String()),
	)

	return c.Create(cmd.OutOrStdout())
}
