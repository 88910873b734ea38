package torrent

import (
	"crypto/sha1"
	"fmt"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/merkle"
)

// HashForPiece returns the expected hash of a piece: the 20 byte SHA-1 for
// torrents with v1 metadata, otherwise the 32 byte merkle hash from the
// file's piece layer.
func (m *Metainfo) HashForPiece(index int) ([]byte, error) {
	if index < 0 || index >= m.origFiles.NumPieces() {
		return nil, fmt.Errorf(`%w: piece index %d out of range [0, %d)`,
			common.ErrPrecondition, index, m.origFiles.NumPieces())
	}
	if m.hasV1 {
		h := m.pieceHashes.Index(index)
		return h[:], nil
	}
	h, err := m.v2PieceHash(index)
	if err != nil {
		return nil, err
	}
	return h[:], nil
}

// v2PieceHash finds the file a piece belongs to. In v2 layouts every file
// starts on a piece boundary so a piece never spans two data files.
func (m *Metainfo) v2PieceHash(index int) (common.Hash256, error) {
	fs := m.origFiles
	pl := int64(fs.PieceLength())
	fi := fs.FileIndexAtOffset(int64(index) * pl)
	f := fs.File(fi)
	if f.IsPad() {
		return common.Hash256{}, fmt.Errorf(`%w: piece %d starts in a pad file`, common.ErrInvalidMetainfo, index)
	}
	if f.Size <= pl {
		return f.PiecesRoot, nil
	}
	if m.layersFreed {
		return common.Hash256{}, ErrPieceLayersFreed
	}
	layer := m.pieceLayers[fi]
	i := int((int64(index)*pl - f.Offset) / pl)
	if i >= len(layer) {
		return common.Hash256{}, fmt.Errorf(`%w: no layer hash for piece %d`, common.ErrInvalidMetainfo, index)
	}
	return layer[i], nil
}

// VerifyPiece checks data against the expected hashes of a piece. For
// hybrid torrents both hashes are checked.
//
// data must be exactly PieceSize(index) bytes, pad bytes included.
func (m *Metainfo) VerifyPiece(index int, data []byte) (bool, error) {
	if index < 0 || index >= m.origFiles.NumPieces() {
		return false, fmt.Errorf(`%w: piece index %d out of range [0, %d)`,
			common.ErrPrecondition, index, m.origFiles.NumPieces())
	}
	if size := m.origFiles.PieceSize(index); len(data) != size {
		return false, fmt.Errorf(`%w: piece %d has %d bytes, got %d`,
			common.ErrPrecondition, index, size, len(data))
	}

	var v1ok, v2ok bool
	if m.hasV1 {
		want := m.pieceHashes.Index(index)
		v1ok = sha1.Sum(data) == [sha1.Size]byte(want)
		if !m.hasV2 || m.layersFreed {
			return v1ok, nil
		}
	}

	want, err := m.v2PieceHash(index)
	if err != nil {
		return false, err
	}
	v2ok = m.v2Hash(index, data) == want

	if m.hasV1 && v1ok != v2ok {
		return false, fmt.Errorf(`%w: v1 and v2 hashes of piece %d disagree`, common.ErrIntegrity, index)
	}
	return v2ok, nil
}

// v2Hash hashes the part of a piece that belongs to its file. Trailing
// pad bytes are not part of the merkle tree.
func (m *Metainfo) v2Hash(index int, data []byte) common.Hash256 {
	fs := m.origFiles
	pl := int64(fs.PieceLength())
	start := int64(index) * pl
	f := fs.File(fs.FileIndexAtOffset(start))
	if end := f.End() - start; end < int64(len(data)) {
		data = data[:end]
	}
	if f.Size <= pl {
		return merkle.FileRoot(data)
	}
	return merkle.PieceHash(data, int(pl))
}

// PieceSource reads the bytes of a piece, see storage.PieceReader.
type PieceSource interface {
	ReadPiece(index int, buf []byte) error
}

// PieceResult is the outcome of checking one piece.
type PieceResult struct {
	Index int
	OK    bool
	Err   error
}

// VerifyAll checks every piece read from r and calls fn with each result.
// It stops early if fn returns false.
func (m *Metainfo) VerifyAll(r PieceSource, fn func(PieceResult) bool) {
	buf := make([]byte, m.origFiles.PieceLength())
	for i := 0; i < m.origFiles.NumPieces(); i++ {
		piece := buf[:m.origFiles.PieceSize(i)]
		res := PieceResult{Index: i}
		if err := r.ReadPiece(i, piece); err != nil {
			res.Err = err
		} else {
			res.OK, res.Err = m.VerifyPiece(i, piece)
		}
		if !fn(res) {
			return
		}
	}
}
