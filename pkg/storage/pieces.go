package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PieceReader reads whole pieces of a torrent from a directory on disk.
// Files are opened on demand and pad files read as zeroes.
type PieceReader struct {
	mu sync.Mutex

	fs  *FileStorage
	dir string

	// File handles for each file in the torrent.
	// Opens on demand.
	fds []*os.File
}

// NewPieceReader reads the files of fs below dir. For multi-file torrents
// dir is the parent of the torrent's root directory.
func NewPieceReader(fs *FileStorage, dir string) *PieceReader {
	return &PieceReader{
		fs:  fs,
		dir: dir,
		fds: make([]*os.File, fs.NumFiles()),
	}
}

// Close ...
func (p *PieceReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for i, f := range p.fds {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			lastErr = err
		}
		p.fds[i] = nil
	}
	return lastErr
}

// ReadPiece reads the piece at index into buf, which must be exactly
// PieceSize(index) bytes long.
func (p *PieceReader) ReadPiece(index int, buf []byte) error {
	if size := p.fs.PieceSize(index); len(buf) != size {
		return fmt.Errorf(`PieceReader.ReadPiece: piece %d has %d bytes, buffer has %d`, index, size, len(buf))
	}
	slices, err := p.fs.MapBlock(index, 0, len(buf))
	if err != nil {
		return fmt.Errorf(`PieceReader.ReadPiece: %w`, err)
	}

	offset := 0
	for _, s := range slices {
		block := buf[offset : offset+int(s.Size)]
		offset += int(s.Size)

		if p.fs.files[s.FileIndex].IsPad() {
			clear(block)
			continue
		}
		fp, err := p.open(s.FileIndex)
		if err != nil {
			return fmt.Errorf(`PieceReader.ReadPiece: %w`, err)
		}
		if _, err := fp.ReadAt(block, s.Offset); err != nil {
			return fmt.Errorf(`PieceReader.ReadPiece: %s: %w`, p.fs.FilePath(s.FileIndex), err)
		}
	}
	return nil
}

func (p *PieceReader) open(index int) (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// if this file is already open, does nothing.
	if fd := p.fds[index]; fd != nil {
		return fd, nil
	}
	fp, err := os.Open(filepath.Join(p.dir, filepath.FromSlash(p.fs.FilePath(index))))
	if err != nil {
		return nil, err
	}
	p.fds[index] = fp
	return fp, nil
}
