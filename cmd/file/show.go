package file

import (
	"fmt"
	"strconv"

	"github.com/movsb/torrentinfo/cmd/shared"
	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/spf13/cobra"
)

// AddCommands ...
func AddCommands(root *cobra.Command) {
	fileCmd := &cobra.Command{
		Use:   `file`,
		Short: `Torrent file layout related commands`,
	}
	root.AddCommand(fileCmd)

	infoCmd := &cobra.Command{
		Use:   `info <torrent-file>`,
		Short: `Show info about a torrent file`,
		Args:  cobra.ExactArgs(1),
		RunE:  fileInfo,
	}
	fileCmd.AddCommand(infoCmd)

	listFilesCmd := &cobra.Command{
		Use:   `list <torrent-file>`,
		Short: `List files in torrent file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  fileList,
	}
	listFilesCmd.Flags().Bool(`pad`, true, `include pad files`)
	fileCmd.AddCommand(listFilesCmd)

	mapCmd := &cobra.Command{
		Use:   `map <torrent-file> <piece> <offset> <size>`,
		Short: `Map a range of a piece onto the files it covers.`,
		Args:  cobra.ExactArgs(4),
		RunE:  fileMap,
	}
	fileCmd.AddCommand(mapCmd)
}

type _Info struct {
	Name        string            `yaml:"name"`
	InfoHashes  common.InfoHashes `yaml:"info_hashes"`
	Versions    []string          `yaml:"versions"`
	Trackers    []torrent.Tracker `yaml:"trackers,omitempty"`
	WebSeeds    []string          `yaml:"web_seeds,omitempty"`
	Nodes       []torrent.Node    `yaml:"nodes,omitempty"`
	TotalSize   int64             `yaml:"total_size"`
	SizeOnDisk  int64             `yaml:"size_on_disk"`
	FileCount   int               `yaml:"file_count"`
	PieceLength int               `yaml:"piece_length"`
	PieceCount  int               `yaml:"piece_count"`
	Private     bool              `yaml:"private,omitempty"`
	I2P         bool              `yaml:"i2p,omitempty"`
	Comment     string            `yaml:"comment,omitempty"`
	CreatedBy   string            `yaml:"created_by,omitempty"`
	Created     int64             `yaml:"creation_date,omitempty"`
	Similar     []common.Hash     `yaml:"similar,omitempty"`
	Collections []string          `yaml:"collections,omitempty"`
}

func fileInfo(cmd *cobra.Command, args []string) error {
	tf, err := shared.Load(cmd, args[0])
	if err != nil {
		return err
	}
	info := _Info{
		Name:        tf.Name(),
		InfoHashes:  tf.InfoHashes(),
		Trackers:    tf.Trackers(),
		WebSeeds:    tf.WebSeeds(),
		Nodes:       tf.Nodes(),
		TotalSize:   tf.TotalSize(),
		SizeOnDisk:  tf.SizeOnDisk(),
		FileCount:   tf.NumFiles(),
		PieceLength: tf.PieceLength(),
		PieceCount:  tf.NumPieces(),
		Private:     tf.Private(),
		I2P:         tf.I2P(),
		Comment:     tf.Comment(),
		CreatedBy:   tf.Creator(),
		Created:     tf.CreationDate(),
		Similar:     tf.SimilarTorrents(),
		Collections: tf.Collections(),
	}
	if tf.V1() {
		info.Versions = append(info.Versions, `v1`)
	}
	if tf.V2() {
		info.Versions = append(info.Versions, `v2`)
	}
	return shared.Print(cmd, info)
}

type _File struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	Offset int64  `yaml:"offset"`
	Attr   string `yaml:"attr,omitempty"`
	Root   string `yaml:"pieces_root,omitempty"`
}

func fileList(cmd *cobra.Command, args []string) error {
	tf, err := shared.Load(cmd, args[0])
	if err != nil {
		return err
	}
	pad, _ := cmd.Flags().GetBool(`pad`)

	fs := tf.Files()
	var files []_File
	for i, f := range fs.Files() {
		if f.IsPad() && !pad {
			continue
		}
		file := _File{
			Path:   fs.FilePath(i),
			Size:   f.Size,
			Offset: f.Offset,
			Attr:   f.Flags.Attr(),
		}
		if !f.PiecesRoot.IsZero() {
			file.Root = f.PiecesRoot.String()
		}
		files = append(files, file)
	}
	return shared.Print(cmd, files)
}

type _Slice struct {
	storage.FileSlice `yaml:",inline"`
	Path              string `yaml:"path"`
}

func fileMap(cmd *cobra.Command, args []string) error {
	tf, err := shared.Load(cmd, args[0])
	if err != nil {
		return err
	}
	var nums [3]int64
	for i, s := range args[1:] {
		if nums[i], err = strconv.ParseInt(s, 10, 64); err != nil {
			return fmt.Errorf(`invalid number: %q`, s)
		}
	}
	slices, err := tf.MapBlock(int(nums[0]), nums[1], int(nums[2]))
	if err != nil {
		return err
	}
	out := make([]_Slice, 0, len(slices))
	for _, s := range slices {
		out = append(out, _Slice{FileSlice: s, Path: tf.Files().FilePath(s.FileIndex)})
	}
	return shared.Print(cmd, out)
}
