// Package storage describes how the bytes of a torrent are laid out over
// its files, and maps ranges between pieces and files.
//
// A FileStorage is immutable once built. Operations that change the layout
// return a new FileStorage and leave the receiver untouched, so a snapshot
// handed to a reader stays valid.
package storage

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/samber/lo"
)

// FileFlags ...
type FileFlags uint8

// File attributes, as found in the `attr` key.
const (
	FlagPad FileFlags = 1 << iota
	FlagExecutable
	FlagHidden
	FlagSymlink
)

// ParseAttr converts an `attr` string into flags. Unknown letters are
// ignored.
func ParseAttr(attr string) FileFlags {
	var f FileFlags
	for _, c := range attr {
		switch c {
		case 'p':
			f |= FlagPad
		case 'x':
			f |= FlagExecutable
		case 'h':
			f |= FlagHidden
		case 'l':
			f |= FlagSymlink
		}
	}
	return f
}

// Attr is the inverse of ParseAttr.
func (f FileFlags) Attr() string {
	var b strings.Builder
	if f&FlagPad != 0 {
		b.WriteByte('p')
	}
	if f&FlagExecutable != 0 {
		b.WriteByte('x')
	}
	if f&FlagHidden != 0 {
		b.WriteByte('h')
	}
	if f&FlagSymlink != 0 {
		b.WriteByte('l')
	}
	return b.String()
}

// FileEntry is one file of a torrent.
type FileEntry struct {
	Index  int      `yaml:"index"`
	Path   []string `yaml:"path"`
	Size   int64    `yaml:"size"`
	Offset int64    `yaml:"offset"`

	Flags       FileFlags      `yaml:"flags,omitempty"`
	SymlinkPath []string       `yaml:"symlink,omitempty"`
	PiecesRoot  common.Hash256 `yaml:"-"`
}

// IsPad ...
func (f FileEntry) IsPad() bool {
	return f.Flags&FlagPad != 0
}

// End is the offset one past the last byte of the file.
func (f FileEntry) End() int64 {
	return f.Offset + f.Size
}

func (f FileEntry) clone() FileEntry {
	f.Path = append([]string(nil), f.Path...)
	if f.SymlinkPath != nil {
		f.SymlinkPath = append([]string(nil), f.SymlinkPath...)
	}
	return f
}

// FileSlice is the part of one file covered by a piece range.
type FileSlice struct {
	FileIndex int   `yaml:"file"`
	Offset    int64 `yaml:"offset"`
	Size      int64 `yaml:"size"`
}

// PeerRequest addresses a range inside a single piece.
type PeerRequest struct {
	Piece  int `yaml:"piece"`
	Start  int `yaml:"start"`
	Length int `yaml:"length"`
}

// FileStorage ...
type FileStorage struct {
	name        string
	single      bool
	files       []FileEntry
	totalSize   int64
	sizeOnDisk  int64
	pieceLength int
	numPieces   int
}

// Name is the torrent name, which is the root directory of a multi-file
// torrent and the file name of a single-file one.
func (s *FileStorage) Name() string {
	return s.name
}

// Single reports whether this is a single-file torrent.
func (s *FileStorage) Single() bool {
	return s.single
}

// NumFiles includes pad files.
func (s *FileStorage) NumFiles() int {
	return len(s.files)
}

// File returns a copy of the entry at index.
func (s *FileStorage) File(index int) FileEntry {
	return s.files[index].clone()
}

// Files returns copies of all entries.
func (s *FileStorage) Files() []FileEntry {
	return lo.Map(s.files, func(f FileEntry, _ int) FileEntry {
		return f.clone()
	})
}

// TotalSize includes pad files.
func (s *FileStorage) TotalSize() int64 {
	return s.totalSize
}

// SizeOnDisk excludes pad files.
func (s *FileStorage) SizeOnDisk() int64 {
	return s.sizeOnDisk
}

// PieceLength ...
func (s *FileStorage) PieceLength() int {
	return s.pieceLength
}

// NumPieces ...
func (s *FileStorage) NumPieces() int {
	return s.numPieces
}

// PieceSize returns the size of the piece at index. Only the last piece
// may be shorter than PieceLength.
func (s *FileStorage) PieceSize(index int) int {
	if index < 0 || index >= s.numPieces {
		return 0
	}
	if index == s.numPieces-1 {
		return int(s.totalSize - int64(index)*int64(s.pieceLength))
	}
	return s.pieceLength
}

// FilePath joins the path of a file with the torrent name, using forward
// slashes.
func (s *FileStorage) FilePath(index int) string {
	f := s.files[index]
	if s.single {
		return path.Join(f.Path...)
	}
	return path.Join(append([]string{s.name}, f.Path...)...)
}

// FileIndexAtOffset returns the file containing the byte at offset.
// Empty files never contain a byte and are skipped.
func (s *FileStorage) FileIndexAtOffset(offset int64) int {
	// first file that starts after offset, minus one.
	i := sort.Search(len(s.files), func(i int) bool {
		return s.files[i].Offset > offset
	})
	return i - 1
}

// FilePieceRange returns the first piece touching the file and one past
// the last one.
func (s *FileStorage) FilePieceRange(index int) (first, end int) {
	f := s.files[index]
	pl := int64(s.pieceLength)
	first = int(f.Offset / pl)
	if f.Size == 0 {
		return first, first
	}
	end = int((f.End() + pl - 1) / pl)
	return first, end
}

// MapBlock maps a range of a piece onto the files it covers. The slices
// are returned in file order, are contiguous and sum up to size.
func (s *FileStorage) MapBlock(piece int, offset int64, size int) ([]FileSlice, error) {
	if piece < 0 || piece >= s.numPieces {
		return nil, fmt.Errorf(`%w: piece index %d out of range [0, %d)`, common.ErrPrecondition, piece, s.numPieces)
	}
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf(`%w: negative offset or size`, common.ErrPrecondition)
	}
	start := int64(piece) * int64(s.pieceLength)
	if offset > s.totalSize-start || int64(size) > s.totalSize-start-offset {
		return nil, fmt.Errorf(`%w: range of %d bytes at %d in piece %d exceeds total size %d`,
			common.ErrPrecondition, size, offset, piece, s.totalSize)
	}
	abs := start + offset
	if size == 0 {
		return nil, nil
	}

	var slices []FileSlice
	remain := int64(size)
	for i := s.FileIndexAtOffset(abs); remain > 0; i++ {
		f := s.files[i]
		if f.Size == 0 {
			continue
		}
		fileOffset := abs - f.Offset
		n := f.Size - fileOffset
		if n > remain {
			n = remain
		}
		slices = append(slices, FileSlice{
			FileIndex: i,
			Offset:    fileOffset,
			Size:      n,
		})
		abs += n
		remain -= n
	}
	return slices, nil
}

// MapFile maps a range of a file onto the piece containing it. The range
// must not cross a piece boundary.
func (s *FileStorage) MapFile(file int, offset int64, size int) (PeerRequest, error) {
	if file < 0 || file >= len(s.files) {
		return PeerRequest{}, fmt.Errorf(`%w: file index %d out of range [0, %d)`, common.ErrPrecondition, file, len(s.files))
	}
	f := s.files[file]
	if offset < 0 || size < 0 || offset > f.Size || int64(size) > f.Size-offset {
		return PeerRequest{}, fmt.Errorf(`%w: range of %d bytes at %d outside of file of size %d`,
			common.ErrPrecondition, size, offset, f.Size)
	}
	abs := f.Offset + offset
	pl := int64(s.pieceLength)
	req := PeerRequest{
		Piece:  int(abs / pl),
		Start:  int(abs % pl),
		Length: size,
	}
	if req.Start+size > s.PieceSize(req.Piece) {
		return PeerRequest{}, fmt.Errorf(`%w: range spans more than one piece`, common.ErrPrecondition)
	}
	return req, nil
}

// Rename returns a copy of s where the file at index has a new path.
// newPath uses forward slashes.
func (s *FileStorage) Rename(index int, newPath string) (*FileStorage, error) {
	if index < 0 || index >= len(s.files) {
		return nil, fmt.Errorf(`%w: file index %d out of range [0, %d)`, common.ErrPrecondition, index, len(s.files))
	}
	segments := strings.Split(newPath, `/`)
	if err := ValidatePath(segments); err != nil {
		return nil, fmt.Errorf(`%w: %v`, common.ErrPrecondition, err)
	}
	c := *s
	c.files = s.Files()
	c.files[index].Path = segments
	return &c, nil
}

// WithPieceLength returns a copy of s whose pieces are recomputed for a
// different piece length.
func (s *FileStorage) WithPieceLength(pieceLength int) (*FileStorage, error) {
	if pieceLength <= 0 {
		return nil, fmt.Errorf(`%w: piece length must be positive`, common.ErrPrecondition)
	}
	c := *s
	c.files = s.Files()
	c.pieceLength = pieceLength
	c.numPieces = numPieces(c.totalSize, pieceLength)
	return &c, nil
}

func numPieces(total int64, pieceLength int) int {
	pl := int64(pieceLength)
	return int((total + pl - 1) / pl)
}

// ValidatePath rejects empty paths and segments that are empty, `.`, `..`
// or contain a separator.
func ValidatePath(segments []string) error {
	if len(segments) == 0 {
		return fmt.Errorf(`empty path`)
	}
	for _, seg := range segments {
		switch {
		case seg == ``:
			return fmt.Errorf(`empty path segment`)
		case seg == `.` || seg == `..`:
			return fmt.Errorf(`invalid path segment: %q`, seg)
		case strings.ContainsAny(seg, "/\\\x00"):
			return fmt.Errorf(`path segment contains separator: %q`, seg)
		}
	}
	return nil
}

// PadPath is the path given to synthesized pad files.
func PadPath(size int64) []string {
	return []string{`.pad`, strconv.FormatInt(size, 10)}
}
