package torrent

import (
	"fmt"
	"log/slog"

	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type _VerifyResult struct {
	Pieces int   `yaml:"pieces"`
	Good   int   `yaml:"good"`
	Bad    []int `yaml:"bad,omitempty"`
	Failed []int `yaml:"failed,omitempty"`
}

func verifyTorrent(cmd *cobra.Command, args []string) error {
	tf, err := shared.Load(cmd, args[0])
	if err != nil {
		return err
	}

	r := storage.NewPieceReader(tf.Files(), args[1])
	defer r.Close()

	var bar *progressbar.ProgressBar
	if progress, _ := cmd.Flags().GetBool(`progress`); progress {
		bar = progressbar.Default(int64(tf.NumPieces()), `verifying`)
		defer bar.Close()
	}

	result := _VerifyResult{Pieces: tf.NumPieces()}
	tf.VerifyAll(r, func(res torrent.PieceResult) bool {
		switch {
		case res.Err != nil:
			slog.Debug(`piece check failed`, slog.Int(`piece`, res.Index), slog.Any(`error`, res.Err))
			result.Failed = append(result.Failed, res.Index)
		case res.OK:
			result.Good++
		default:
			result.Bad = append(result.Bad, res.Index)
		}
		if bar != nil {
			bar.Add(1)
		}
		return true
	})

	if err := shared.Print(cmd, result); err != nil {
		return err
	}
	if result.Good != result.Pieces {
		return fmt.Errorf(`%d of %d pieces did not verify`, result.Pieces-result.Good, result.Pieces)
	}
	return nil
}
