package torrent

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/merkle"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/zeebo/bencode"
)

// Version selects the metadata a Creator writes.
type Version int

// Versions.
const (
	V1 Version = 1 << iota
	V2

	Hybrid = V1 | V2
)

// ParseVersion accepts `v1`, `v2` and `hybrid`.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(s) {
	case `v1`, `1`:
		return V1, nil
	case `v2`, `2`:
		return V2, nil
	case `hybrid`:
		return Hybrid, nil
	}
	return 0, fmt.Errorf(`unknown torrent version: %q`, s)
}

func (v Version) String() string {
	switch v {
	case V1:
		return `v1`
	case V2:
		return `v2`
	case Hybrid:
		return `hybrid`
	}
	return fmt.Sprintf(`Version(%d)`, int(v))
}

// SourceFile is one file to put into a torrent.
type SourceFile struct {
	// Path relative to the torrent root. For a single-file torrent this is
	// just the name.
	Path       []string
	Size       int64
	Executable bool
	Open       func() (io.ReadCloser, error)
}

// Creator is the torrent file creator.
type Creator struct {
	Name        string
	Files       []SourceFile
	Version     Version
	PieceLength int // chosen from the total size if zero

	Trackers     []string // one tier each
	WebSeeds     []string
	Comment      string
	CreatedBy    string
	CreationDate int64
	Private      bool

	// Progress, if set, receives every byte that is hashed.
	Progress io.Writer
}

// NewCreator creates a v1 torrent creator for a file or a directory.
func NewCreator(path string) (*Creator, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf(`creator: %w`, err)
	}
	stat, err := os.Stat(abs) // Lstat?
	if err != nil {
		return nil, fmt.Errorf(`creator: stat failed: %w`, err)
	}

	c := &Creator{
		Name:    stat.Name(),
		Version: V1,
	}

	switch {
	default:
		return nil, fmt.Errorf(`creator: invalid file type: %v`, stat.Mode())
	case stat.Mode().IsRegular():
		c.Files = []SourceFile{osFile(abs, []string{stat.Name()}, stat)}
	case stat.IsDir():
		if c.Files, err = fileList(abs); err != nil {
			return nil, fmt.Errorf(`creator: %w`, err)
		}
	}
	return c, nil
}

func osFile(path string, segments []string, info os.FileInfo) SourceFile {
	return SourceFile{
		Path:       segments,
		Size:       info.Size(),
		Executable: info.Mode()&0111 != 0,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

func fileList(dir string) ([]SourceFile, error) {
	if len(dir) == 1 {
		return nil, fmt.Errorf(`dir cannot be root`)
	}

	var files []SourceFile

	if err := filepath.Walk(dir,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, osFile(path, strings.Split(rel, string(os.PathSeparator)), info))
			return nil
		},
	); err != nil {
		return nil, err
	}

	return files, nil
}

// Create hashes the files and writes the torrent file to w.
func (c *Creator) Create(w io.Writer) error {
	b, err := c.Build()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Build hashes the files and returns the encoded torrent file.
func (c *Creator) Build() ([]byte, error) {
	if c.Version&Hybrid == 0 || c.Version&^Hybrid != 0 {
		return nil, fmt.Errorf(`creator: invalid version: %v`, c.Version)
	}
	if err := storage.ValidatePath([]string{c.Name}); err != nil {
		return nil, fmt.Errorf(`creator: name: %w`, err)
	}
	if len(c.Files) == 0 {
		return nil, fmt.Errorf(`creator: no files`)
	}

	files := append([]SourceFile(nil), c.Files...)
	sort.SliceStable(files, func(i, j int) bool {
		return comparePaths(files[i].Path, files[j].Path) < 0
	})

	var total int64
	for i, f := range files {
		if err := storage.ValidatePath(f.Path); err != nil {
			return nil, fmt.Errorf(`creator: file %d: %w`, i, err)
		}
		if i > 0 && comparePaths(files[i-1].Path, f.Path) == 0 {
			return nil, fmt.Errorf(`creator: duplicate file: %s`, strings.Join(f.Path, `/`))
		}
		// sorting puts a file right before the files below it, if any.
		if i > 0 {
			if prev := files[i-1].Path; len(prev) < len(f.Path) && slices.Equal(prev, f.Path[:len(prev)]) {
				return nil, fmt.Errorf(`creator: %s is both a file and a directory`, strings.Join(prev, `/`))
			}
		}
		total += f.Size
	}
	if total == 0 {
		return nil, fmt.Errorf(`creator: total size is zero`)
	}

	pieceLength := c.PieceLength
	if pieceLength == 0 {
		pieceLength, _ = calcPiece(total)
	}
	if pieceLength <= 0 {
		return nil, fmt.Errorf(`creator: invalid piece length: %d`, pieceLength)
	}
	if c.Version&V2 != 0 && (pieceLength < merkle.BlockSize || pieceLength&(pieceLength-1) != 0) {
		return nil, fmt.Errorf(`creator: v2 piece length must be a power of two >= %d: %d`, merkle.BlockSize, pieceLength)
	}

	single := len(files) == 1 && len(files[0].Path) == 1 && files[0].Path[0] == c.Name

	h := _Hasher{
		version:     c.Version,
		pieceLength: pieceLength,
		progress:    c.Progress,
		v1:          newPieceHasher(pieceLength),
	}
	for i, f := range files {
		if err := h.hashFile(f, i == len(files)-1); err != nil {
			return nil, fmt.Errorf(`creator: %s: %w`, strings.Join(f.Path, `/`), err)
		}
	}

	info := map[string]interface{}{
		`name`:         c.Name,
		`piece length`: pieceLength,
	}
	if c.Private {
		info[`private`] = 1
	}
	if c.Version&V1 != 0 {
		info[`pieces`] = string(h.v1.finish())
		if single {
			info[`length`] = files[0].Size
			if files[0].Executable {
				info[`attr`] = `x`
			}
		} else {
			info[`files`] = h.v1Files
		}
	}
	if c.Version&V2 != 0 {
		info[`meta version`] = 2
		info[`file tree`] = h.tree
	}

	rawInfo, err := bencode.EncodeBytes(info)
	if err != nil {
		return nil, fmt.Errorf(`creator: encode info: %w`, err)
	}

	top := map[string]interface{}{
		`info`: bencode.RawMessage(rawInfo),
	}
	if len(c.Trackers) > 0 {
		top[`announce`] = c.Trackers[0]
		if len(c.Trackers) > 1 {
			tiers := make([]interface{}, 0, len(c.Trackers))
			for _, t := range c.Trackers {
				tiers = append(tiers, []string{t})
			}
			top[`announce-list`] = tiers
		}
	}
	if len(c.WebSeeds) == 1 {
		top[`url-list`] = c.WebSeeds[0]
	} else if len(c.WebSeeds) > 1 {
		top[`url-list`] = c.WebSeeds
	}
	if c.Comment != `` {
		top[`comment`] = c.Comment
	}
	if c.CreatedBy != `` {
		top[`created by`] = c.CreatedBy
	}
	if c.CreationDate != 0 {
		top[`creation date`] = c.CreationDate
	}
	if len(h.layers) > 0 {
		top[`piece layers`] = h.layers
	}

	return bencode.EncodeBytes(top)
}

func comparePaths(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// _Hasher streams the files once and produces everything that depends
// on their contents.
type _Hasher struct {
	version     Version
	pieceLength int
	progress    io.Writer

	v1      *_PieceHasher
	v1Files []interface{}

	tree   map[string]interface{}
	layers map[string]string
}

func (h *_Hasher) hashFile(f SourceFile, last bool) error {
	var leaves []common.Hash256

	if f.Size > 0 {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		chunk := make([]byte, h.pieceLength)
		for remain := f.Size; remain > 0; {
			n := int64(len(chunk))
			if n > remain {
				n = remain
			}
			if _, err := io.ReadFull(rc, chunk[:n]); err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
					return fmt.Errorf(`file size changed`)
				}
				return err
			}
			data := chunk[:n]
			if h.version&V1 != 0 {
				h.v1.write(data)
			}
			if h.version&V2 != 0 {
				leaves = append(leaves, merkle.BlockHashes(data)...)
			}
			if h.progress != nil {
				h.progress.Write(data)
			}
			remain -= n
		}
		if n, _ := rc.Read(chunk[:1]); n > 0 {
			return fmt.Errorf(`file size changed`)
		}
	}

	if h.version&V1 != 0 {
		h.addV1File(f, last)
	}
	if h.version&V2 != 0 {
		h.addV2File(f, leaves)
	}
	return nil
}

func (h *_Hasher) addV1File(f SourceFile, last bool) {
	entry := map[string]interface{}{
		`length`: f.Size,
		`path`:   f.Path,
	}
	if f.Executable {
		entry[`attr`] = `x`
	}
	h.v1Files = append(h.v1Files, entry)

	// hybrid torrents keep v1 files on the same piece boundaries as v2.
	if h.version&V2 == 0 || last {
		return
	}
	if pad := h.v1.pad(); pad > 0 {
		h.v1Files = append(h.v1Files, map[string]interface{}{
			`attr`:   `p`,
			`length`: pad,
			`path`:   storage.PadPath(pad),
		})
	}
}

func (h *_Hasher) addV2File(f SourceFile, leaves []common.Hash256) {
	props := map[string]interface{}{
		`length`: f.Size,
	}
	if f.Executable {
		props[`attr`] = `x`
	}
	if f.Size > 0 {
		var root common.Hash256
		if f.Size <= int64(h.pieceLength) {
			root = merkle.Reduce(leaves, 0)
		} else {
			layer := merkle.PieceLayer(leaves, h.pieceLength)
			root = merkle.RootFromLayer(layer, h.pieceLength)
			var b []byte
			for _, l := range layer {
				b = append(b, l[:]...)
			}
			if h.layers == nil {
				h.layers = make(map[string]string)
			}
			h.layers[string(root[:])] = string(b)
		}
		props[`pieces root`] = string(root[:])
	}

	if h.tree == nil {
		h.tree = make(map[string]interface{})
	}
	dir := h.tree
	for _, seg := range f.Path[:len(f.Path)-1] {
		sub, ok := dir[seg].(map[string]interface{})
		if !ok {
			sub = make(map[string]interface{})
			dir[seg] = sub
		}
		dir = sub
	}
	dir[f.Path[len(f.Path)-1]] = map[string]interface{}{``: props}
}

// _PieceHasher computes v1 piece hashes over a byte stream.
type _PieceHasher struct {
	h           hash.Hash
	pieceLength int
	n           int
	pieces      []byte
}

func newPieceHasher(pieceLength int) *_PieceHasher {
	return &_PieceHasher{
		h:           sha1.New(),
		pieceLength: pieceLength,
	}
}

func (p *_PieceHasher) write(b []byte) {
	for len(b) > 0 {
		n := p.pieceLength - p.n
		if n > len(b) {
			n = len(b)
		}
		p.h.Write(b[:n])
		p.n += n
		b = b[n:]
		if p.n == p.pieceLength {
			p.flush()
		}
	}
}

// pad fills the current piece with zeroes and returns how many were
// written.
func (p *_PieceHasher) pad() int64 {
	if p.n == 0 {
		return 0
	}
	n := p.pieceLength - p.n
	p.write(make([]byte, n))
	return int64(n)
}

func (p *_PieceHasher) flush() {
	p.pieces = p.h.Sum(p.pieces)
	p.h.Reset()
	p.n = 0
}

func (p *_PieceHasher) finish() []byte {
	if p.n > 0 {
		p.flush()
	}
	return p.pieces
}

func calcPiece(totalSize int64) (pieceLength int, pieceCount int) {
	const (
		maxPieceCount  int = 20000
		minPieceLength int = 256 << 10
	)
	var (
		pieceLength64 = int64(minPieceLength)
	)

	for {
		pieceCount64 := totalSize / pieceLength64
		if totalSize%pieceLength64 != 0 {
			pieceCount64++
		}
		if pieceCount64 <= int64(maxPieceCount) {
			if pieceLength64 < math.MaxInt32 && pieceCount64 < math.MaxInt32 {
				return int(pieceLength64), int(pieceCount64)
			}
		}
		pieceLength64 *= 2
	}
}
