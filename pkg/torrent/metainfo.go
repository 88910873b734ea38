package torrent

import (
	"errors"
	"fmt"

	"github.com/movsb/torrentinfo/pkg/bencode"
	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/samber/lo"
)

// ErrPieceLayersFreed is returned by v2 lookups after FreePieceLayers.
var ErrPieceLayersFreed = errors.New(`piece layers have been freed`)

// Tracker ...
type Tracker struct {
	URL  string `yaml:"url"`
	Tier int    `yaml:"tier"`
}

// Node is a DHT bootstrap node.
type Node struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Metainfo is a parsed torrent file.
//
// It is safe for concurrent reads. RenameFile, RemapFiles and
// FreePieceLayers must not run concurrently with anything else on the
// same Metainfo.
type Metainfo struct {
	// files is the working layout, origFiles the one from the torrent.
	// Both are immutable snapshots.
	files     *storage.FileStorage
	origFiles *storage.FileStorage

	infoHashes  common.InfoHashes
	infoSection []byte

	pieceHashes  common.PieceHashes
	pieceLayers  [][]common.Hash256
	layersFreed  bool
	hasV1, hasV2 bool

	trackers     []Tracker
	webSeeds     []string
	nodes        []Node
	similar      []common.Hash
	collections  []string
	creationDate int64
	creator      string
	comment      string
	private      bool
	i2p          bool

	// similar and collections found outside of the info dictionary.
	topSimilar     []common.Hash
	topCollections []string
}

// IsValid reports whether the metainfo has been loaded.
func (m *Metainfo) IsValid() bool {
	return m != nil && m.files != nil && !m.infoHashes.IsZero()
}

// Files returns the working file layout, which reflects renames and
// remaps.
func (m *Metainfo) Files() *storage.FileStorage {
	return m.files
}

// OrigFiles returns the file layout as found in the torrent file.
func (m *Metainfo) OrigFiles() *storage.FileStorage {
	return m.origFiles
}

// RenameFile changes the path of a file in the working layout only.
func (m *Metainfo) RenameFile(index int, newPath string) error {
	fs, err := m.files.Rename(index, newPath)
	if err != nil {
		return err
	}
	m.files = fs
	return nil
}

// RemapFiles replaces the working layout. The new layout must have the
// same total size; its pieces are recomputed with the torrent's piece
// length.
func (m *Metainfo) RemapFiles(fs *storage.FileStorage) error {
	if fs == nil {
		return fmt.Errorf(`%w: nil file storage`, common.ErrPrecondition)
	}
	if fs.TotalSize() != m.files.TotalSize() {
		return fmt.Errorf(`%w: remap to %d bytes, torrent has %d`,
			common.ErrSizeMismatch, fs.TotalSize(), m.files.TotalSize())
	}
	nfs, err := fs.WithPieceLength(m.PieceLength())
	if err != nil {
		return err
	}
	m.files = nfs
	return nil
}

// FreePieceLayers drops the v2 piece layers. Afterwards v2 piece hashes
// are only available for files that fit in a single piece.
func (m *Metainfo) FreePieceLayers() {
	m.pieceLayers = nil
	m.layersFreed = true
}

// PieceLayer returns a copy of the piece layer of a file in the original
// layout, or nil if the file has none.
func (m *Metainfo) PieceLayer(fileIndex int) []common.Hash256 {
	if fileIndex < 0 || fileIndex >= len(m.pieceLayers) {
		return nil
	}
	return append([]common.Hash256(nil), m.pieceLayers[fileIndex]...)
}

// Name ...
func (m *Metainfo) Name() string {
	return m.origFiles.Name()
}

// NumFiles ...
func (m *Metainfo) NumFiles() int {
	return m.files.NumFiles()
}

// TotalSize includes pad files.
func (m *Metainfo) TotalSize() int64 {
	return m.files.TotalSize()
}

// SizeOnDisk excludes pad files.
func (m *Metainfo) SizeOnDisk() int64 {
	return m.files.SizeOnDisk()
}

// PieceLength ...
func (m *Metainfo) PieceLength() int {
	return m.origFiles.PieceLength()
}

// NumPieces ...
func (m *Metainfo) NumPieces() int {
	return m.files.NumPieces()
}

// PieceSize ...
func (m *Metainfo) PieceSize(index int) int {
	return m.files.PieceSize(index)
}

// MapBlock maps a range of a piece onto the working layout.
func (m *Metainfo) MapBlock(piece int, offset int64, size int) ([]storage.FileSlice, error) {
	return m.files.MapBlock(piece, offset, size)
}

// MapFile maps a range of a file in the working layout onto a piece.
func (m *Metainfo) MapFile(file int, offset int64, size int) (storage.PeerRequest, error) {
	return m.files.MapFile(file, offset, size)
}

// InfoHash returns the v1 info-hash, or the truncated v2 one for v2-only
// torrents.
func (m *Metainfo) InfoHash() common.Hash {
	return m.infoHashes.Best()
}

// InfoHashes ...
func (m *Metainfo) InfoHashes() common.InfoHashes {
	return m.infoHashes
}

// V1 reports whether the torrent has v1 metadata.
func (m *Metainfo) V1() bool {
	return m.hasV1
}

// V2 reports whether the torrent has v2 metadata.
func (m *Metainfo) V2() bool {
	return m.hasV2
}

// PieceHashes returns the v1 piece hash blob.
func (m *Metainfo) PieceHashes() common.PieceHashes {
	return m.pieceHashes
}

// InfoSection returns the exact bytes of the info dictionary.
func (m *Metainfo) InfoSection() []byte {
	return m.infoSection
}

// InfoField looks up a key of the info dictionary, including keys the
// parser does not know about. The node refers into the Metainfo's own
// copy of the info section.
func (m *Metainfo) InfoField(key string) (bencode.Node, bool) {
	root, err := bencode.Decode(m.infoSection)
	if err != nil {
		return bencode.Node{}, false
	}
	return root.DictFind(key)
}

// Trackers ...
func (m *Metainfo) Trackers() []Tracker {
	return append([]Tracker(nil), m.trackers...)
}

// WebSeeds ...
func (m *Metainfo) WebSeeds() []string {
	return append([]string(nil), m.webSeeds...)
}

// Nodes ...
func (m *Metainfo) Nodes() []Node {
	return append([]Node(nil), m.nodes...)
}

// SimilarTorrents returns the BEP38 "similar" info-hashes from inside and
// outside of the info dictionary.
func (m *Metainfo) SimilarTorrents() []common.Hash {
	return lo.Uniq(append(append([]common.Hash(nil), m.similar...), m.topSimilar...))
}

// Collections returns the BEP38 collection names.
func (m *Metainfo) Collections() []string {
	return lo.Uniq(append(append([]string(nil), m.collections...), m.topCollections...))
}

// CreationDate is a unix timestamp, 0 if absent.
func (m *Metainfo) CreationDate() int64 {
	return m.creationDate
}

// Creator ...
func (m *Metainfo) Creator() string {
	return m.creator
}

// Comment ...
func (m *Metainfo) Comment() string {
	return m.comment
}

// Private ...
func (m *Metainfo) Private() bool {
	return m.private
}

// I2P reports whether any tracker is on the i2p network.
func (m *Metainfo) I2P() bool {
	return m.i2p
}
