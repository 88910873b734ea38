package storage

import (
	"fmt"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/samber/lo"
)

// Builder collects files in order and produces a FileStorage.
type Builder struct {
	name        string
	single      bool
	pieceLength int
	files       []FileEntry
	offset      int64
	err         error
}

// NewBuilder ...
func NewBuilder(name string, pieceLength int) *Builder {
	return &Builder{
		name:        name,
		pieceLength: pieceLength,
	}
}

// SetSingle marks the storage as a single-file torrent.
func (b *Builder) SetSingle(single bool) *Builder {
	b.single = single
	return b
}

// AddFile appends a file. Errors are reported by Build.
func (b *Builder) AddFile(segments []string, size int64, flags FileFlags) *FileEntry {
	if b.err != nil {
		return &FileEntry{}
	}
	if size < 0 {
		b.err = fmt.Errorf(`negative file size: %d`, size)
		return &FileEntry{}
	}
	if flags&FlagPad == 0 {
		if err := ValidatePath(segments); err != nil {
			b.err = err
			return &FileEntry{}
		}
	}
	if b.offset+size < b.offset {
		b.err = fmt.Errorf(`total size overflows`)
		return &FileEntry{}
	}
	b.files = append(b.files, FileEntry{
		Index:  len(b.files),
		Path:   append([]string(nil), segments...),
		Size:   size,
		Offset: b.offset,
		Flags:  flags,
	})
	b.offset += size
	return &b.files[len(b.files)-1]
}

// AddPadFile appends a pad file of size bytes.
func (b *Builder) AddPadFile(size int64) {
	b.AddFile(PadPath(size), size, FlagPad)
}

// AlignToPiece appends a pad file so the next file starts on a piece
// boundary. It does nothing if the current end is already aligned.
func (b *Builder) AlignToPiece() {
	if b.pieceLength <= 0 {
		return
	}
	if rem := b.offset % int64(b.pieceLength); rem != 0 {
		b.AddPadFile(int64(b.pieceLength) - rem)
	}
}

// Offset is the current end of the layout.
func (b *Builder) Offset() int64 {
	return b.offset
}

// Build validates and freezes the layout.
func (b *Builder) Build() (*FileStorage, error) {
	if b.err != nil {
		return nil, fmt.Errorf(`%w: %v`, common.ErrInvalidMetainfo, b.err)
	}
	if b.pieceLength <= 0 {
		return nil, fmt.Errorf(`%w: piece length must be positive: %d`, common.ErrInvalidMetainfo, b.pieceLength)
	}
	if len(b.files) == 0 {
		return nil, fmt.Errorf(`%w: no files`, common.ErrInvalidMetainfo)
	}
	if b.offset == 0 {
		return nil, fmt.Errorf(`%w: total size is zero`, common.ErrInvalidMetainfo)
	}

	files := make([]FileEntry, len(b.files))
	copy(files, b.files)

	return &FileStorage{
		name:   b.name,
		single: b.single,
		files:  files,
		sizeOnDisk: lo.SumBy(files, func(f FileEntry) int64 {
			if f.IsPad() {
				return 0
			}
			return f.Size
		}),
		totalSize:   b.offset,
		pieceLength: b.pieceLength,
		numPieces:   numPieces(b.offset, b.pieceLength),
	}, nil
}

// FromEntries builds a storage from existing entries, recomputing
// offsets. Indices and offsets in entries are ignored.
func FromEntries(name string, pieceLength int, entries []FileEntry) (*FileStorage, error) {
	b := NewBuilder(name, pieceLength)
	b.SetSingle(len(entries) == 1 && !entries[0].IsPad())
	for _, e := range entries {
		f := b.AddFile(e.Path, e.Size, e.Flags)
		if e.SymlinkPath != nil {
			f.SymlinkPath = append([]string(nil), e.SymlinkPath...)
		}
		f.PiecesRoot = e.PiecesRoot
	}
	return b.Build()
}
