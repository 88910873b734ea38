package storage

import (
	"errors"
	"math"
	"testing"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, pieceLength int, sizes ...int64) *FileStorage {
	t.Helper()
	b := NewBuilder(`test`, pieceLength)
	for i, size := range sizes {
		b.AddFile([]string{string(rune('a' + i))}, size, 0)
	}
	fs, err := b.Build()
	require.NoError(t, err)
	return fs
}

func TestPieceCount(t *testing.T) {
	var tests = []struct {
		name        string
		pieceLength int
		sizes       []int64
		numPieces   int
		lastPiece   int
	}{
		{name: "single file, partial last piece", pieceLength: 16384, sizes: []int64{100000}, numPieces: 7, lastPiece: 1696},
		{name: "exact multiple", pieceLength: 100, sizes: []int64{80, 120}, numPieces: 2, lastPiece: 100},
		{name: "smaller than one piece", pieceLength: 1 << 20, sizes: []int64{1}, numPieces: 1, lastPiece: 1},
		{name: "many files", pieceLength: 100, sizes: []int64{80, 140, 50, 130}, numPieces: 4, lastPiece: 100},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fs := build(t, tt.pieceLength, tt.sizes...)
			assert.Equal(t, tt.numPieces, fs.NumPieces())
			assert.Equal(t, tt.lastPiece, fs.PieceSize(fs.NumPieces()-1))
			last := fs.File(fs.NumFiles() - 1)
			assert.Equal(t, fs.TotalSize(), last.Offset+last.Size)
			assert.Equal(t, fs.TotalSize()-int64(fs.NumPieces()-1)*int64(tt.pieceLength), int64(fs.PieceSize(fs.NumPieces()-1)))
		})
	}
}

func TestBuildRejects(t *testing.T) {
	_, err := NewBuilder(`x`, 0).Build()
	assert.True(t, errors.Is(err, common.ErrInvalidMetainfo))

	b := NewBuilder(`x`, 16)
	b.AddFile([]string{`empty`}, 0, 0)
	_, err = b.Build()
	assert.True(t, errors.Is(err, common.ErrInvalidMetainfo))

	for _, bad := range [][]string{{}, {``}, {`a`, `..`, `b`}, {`.`}, {`a/b`}, {`c:\x`}} {
		b := NewBuilder(`x`, 16)
		b.AddFile(bad, 10, 0)
		_, err := b.Build()
		assert.True(t, errors.Is(err, common.ErrInvalidMetainfo), "%q", bad)
	}
}

func TestMapBlockAcrossFiles(t *testing.T) {
	fs := build(t, 16384, 10000, 20000)

	slices, err := fs.MapBlock(0, 0, 16384)
	require.NoError(t, err)
	assert.Equal(t, []FileSlice{
		{FileIndex: 0, Offset: 0, Size: 10000},
		{FileIndex: 1, Offset: 0, Size: 6384},
	}, slices)

	slices, err = fs.MapBlock(1, 100, 1000)
	require.NoError(t, err)
	assert.Equal(t, []FileSlice{{FileIndex: 1, Offset: 6484, Size: 1000}}, slices)
}

func TestMapBlockSkipsEmptyFiles(t *testing.T) {
	fs := build(t, 100, 80, 0, 0, 140, 50, 130)

	slices, err := fs.MapBlock(0, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []FileSlice{
		{FileIndex: 0, Offset: 0, Size: 80},
		{FileIndex: 3, Offset: 0, Size: 20},
	}, slices)

	slices, err = fs.MapBlock(2, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []FileSlice{
		{FileIndex: 3, Offset: 120, Size: 20},
		{FileIndex: 4, Offset: 0, Size: 50},
		{FileIndex: 5, Offset: 0, Size: 30},
	}, slices)
}

func TestMapBlockProperties(t *testing.T) {
	fs := build(t, 100, 80, 140, 50, 130, 7, 1)
	for piece := 0; piece < fs.NumPieces(); piece++ {
		size := fs.PieceSize(piece)
		slices, err := fs.MapBlock(piece, 0, size)
		require.NoError(t, err)

		abs := int64(piece) * 100
		var sum int64
		for _, s := range slices {
			f := fs.File(s.FileIndex)
			assert.LessOrEqual(t, s.Offset+s.Size, f.Size)
			// contiguous in torrent space
			assert.Equal(t, abs, f.Offset+s.Offset)
			abs += s.Size
			sum += s.Size
		}
		assert.Equal(t, int64(size), sum)
	}
}

func TestMapBlockPreconditions(t *testing.T) {
	fs := build(t, 16384, 10000, 20000)
	for _, c := range []struct {
		piece  int
		offset int64
		size   int
	}{
		{-1, 0, 1},
		{2, 0, 1},
		{1, 13000, 1000},
		{0, -1, 10},
		{0, 0, -1},
		{0, math.MaxInt64, 1},
		{1, math.MaxInt64 - 16384, 1},
	} {
		_, err := fs.MapBlock(c.piece, c.offset, c.size)
		assert.True(t, errors.Is(err, common.ErrPrecondition), "%+v", c)
	}
}

func TestMapFileInvertsMapBlock(t *testing.T) {
	fs := build(t, 100, 80, 140, 50, 130)

	for file := 0; file < fs.NumFiles(); file++ {
		f := fs.File(file)
		for offset := int64(0); offset < f.Size; offset += 7 {
			abs := f.Offset + offset
			size := int(100 - abs%100)
			if rest := f.Size - offset; int64(size) > rest {
				size = int(rest)
			}
			req, err := fs.MapFile(file, offset, size)
			require.NoError(t, err)

			slices, err := fs.MapBlock(req.Piece, int64(req.Start), req.Length)
			require.NoError(t, err)
			assert.Equal(t, []FileSlice{{FileIndex: file, Offset: offset, Size: int64(size)}}, slices)
		}
	}
}

func TestMapFilePreconditions(t *testing.T) {
	fs := build(t, 100, 80, 140)

	_, err := fs.MapFile(2, 0, 1)
	assert.True(t, errors.Is(err, common.ErrPrecondition))

	_, err = fs.MapFile(0, 70, 20)
	assert.True(t, errors.Is(err, common.ErrPrecondition))

	_, err = fs.MapFile(1, math.MaxInt64, 1)
	assert.True(t, errors.Is(err, common.ErrPrecondition))

	// inside file 1, but crosses from piece 0 into piece 1.
	_, err = fs.MapFile(1, 10, 20)
	assert.True(t, errors.Is(err, common.ErrPrecondition))

	req, err := fs.MapFile(1, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, PeerRequest{Piece: 1, Start: 0, Length: 100}, req)
}

func TestRenameIsCopyOnWrite(t *testing.T) {
	fs := build(t, 100, 80, 140)

	renamed, err := fs.Rename(0, `new/name.bin`)
	require.NoError(t, err)
	assert.Equal(t, []string{`new`, `name.bin`}, renamed.File(0).Path)
	assert.Equal(t, []string{`a`}, fs.File(0).Path)
	assert.Equal(t, `test/new/name.bin`, renamed.FilePath(0))

	_, err = fs.Rename(0, `../escape`)
	assert.True(t, errors.Is(err, common.ErrPrecondition))
	_, err = fs.Rename(5, `x`)
	assert.True(t, errors.Is(err, common.ErrPrecondition))
}

func TestPadFiles(t *testing.T) {
	b := NewBuilder(`padded`, 100)
	b.AddFile([]string{`a`}, 80, FlagExecutable)
	b.AlignToPiece()
	b.AddFile([]string{`b`}, 100, 0)
	b.AlignToPiece()
	b.AddFile([]string{`c`}, 1, ParseAttr(`hx`))
	fs, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, 4, fs.NumFiles())
	pad := fs.File(1)
	assert.True(t, pad.IsPad())
	assert.Equal(t, int64(20), pad.Size)
	assert.Equal(t, []string{`.pad`, `20`}, pad.Path)
	assert.Equal(t, int64(181), fs.SizeOnDisk())
	assert.Equal(t, int64(201), fs.TotalSize())
	assert.Equal(t, 3, fs.NumPieces())
	assert.Equal(t, `xh`, fs.File(3).Flags.Attr())

	first, end := fs.FilePieceRange(2)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, end)
}

func TestWithPieceLength(t *testing.T) {
	fs := build(t, 100, 80, 140)
	other, err := fs.WithPieceLength(64)
	require.NoError(t, err)
	assert.Equal(t, 4, other.NumPieces())
	assert.Equal(t, 3, fs.NumPieces())
}
