package torrent

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strings"

	"github.com/movsb/torrentinfo/pkg/bencode"
	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/merkle"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/samber/lo"
)

// ParseFile reads and parses a torrent file.
func ParseFile(path string, opts ...Option) (*Metainfo, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(buf, opts...)
}

// Load decodes and parses a torrent held in memory. The returned Metainfo
// does not reference buf.
func Load(buf []byte, opts ...Option) (*Metainfo, error) {
	o := newOptions(opts)
	root, err := bencode.Decode(buf,
		bencode.WithMaxDepth(o.settings.MaxDepth),
		bencode.WithTokenLimit(o.settings.TokenLimit),
	)
	if err != nil {
		return nil, err
	}
	return parse(root, o)
}

// Parse builds a Metainfo from a decoded torrent file. Everything the
// Metainfo keeps is copied out of the decoder's buffer.
func Parse(root bencode.Node, opts ...Option) (*Metainfo, error) {
	return parse(root, newOptions(opts))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf(`%w: `+format, append([]interface{}{common.ErrInvalidMetainfo}, args...)...)
}

func integrity(format string, args ...interface{}) error {
	return fmt.Errorf(`%w: `+format, append([]interface{}{common.ErrIntegrity}, args...)...)
}

type _Parser struct {
	settings Settings
	log      *slog.Logger
}

func parse(root bencode.Node, o options) (*Metainfo, error) {
	p := _Parser{
		settings: o.settings,
		log:      o.logger,
	}
	m := &Metainfo{}
	if err := p.parse(m, root); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *_Parser) parse(m *Metainfo, root bencode.Node) error {
	if root.Kind() != bencode.KindDict {
		return invalid(`torrent file is not a dictionary`)
	}
	info, ok := root.DictFindDict(`info`)
	if !ok {
		return invalid(`missing info dictionary`)
	}

	m.infoSection = append([]byte(nil), info.Raw()...)
	if err := p.parseInfo(m, info); err != nil {
		return err
	}
	if m.hasV2 {
		if err := p.parsePieceLayers(m, root); err != nil {
			return err
		}
	}
	p.parseTopLevel(m, root)
	return nil
}

func (p *_Parser) parseInfo(m *Metainfo, info bencode.Node) error {
	name, ok := info.DictFindString(`name.utf-8`)
	if !ok {
		name, ok = info.DictFindString(`name`)
	}
	if !ok {
		return invalid(`missing name`)
	}
	if err := storage.ValidatePath([]string{name}); err != nil {
		return invalid(`name: %v`, err)
	}

	pieceLength, ok := info.DictFindInt(`piece length`)
	if !ok {
		return invalid(`missing piece length`)
	}
	if pieceLength <= 0 || pieceLength > math.MaxInt32 {
		return invalid(`piece length out of range: %d`, pieceLength)
	}
	pl := int(pieceLength)

	pieces, hasPieces := info.DictFindBytes(`pieces`)
	metaVersion, _ := info.DictFindInt(`meta version`)
	fileTree, hasTree := info.DictFindDict(`file tree`)
	if metaVersion > 2 {
		return invalid(`unsupported meta version: %d`, metaVersion)
	}

	m.hasV1 = hasPieces
	m.hasV2 = metaVersion == 2 && hasTree
	if !m.hasV1 && !m.hasV2 {
		return invalid(`neither pieces nor a v2 file tree present`)
	}

	var v1fs, v2fs *storage.FileStorage
	var err error

	if m.hasV1 {
		if len(pieces)%sha1.Size != 0 {
			return invalid(`pieces length is not a multiple of %d: %d`, sha1.Size, len(pieces))
		}
		if v1fs, err = p.parseV1Files(name, pl, info); err != nil {
			return err
		}
		if n := len(pieces) / sha1.Size; n != v1fs.NumPieces() {
			return invalid(`%d piece hashes for %d pieces`, n, v1fs.NumPieces())
		}
	}

	if m.hasV2 {
		if pl < merkle.BlockSize || pl&(pl-1) != 0 {
			return invalid(`v2 piece length must be a power of two >= %d: %d`, merkle.BlockSize, pl)
		}
		if v2fs, err = p.parseV2Files(name, pl, fileTree); err != nil {
			return err
		}
	}

	fs := v1fs
	if m.hasV2 {
		fs = v2fs
		if m.hasV1 {
			if err := checkHybrid(v1fs, v2fs); err != nil {
				return err
			}
		}
	}

	if limit := p.settings.MaxPieces; limit > 0 && fs.NumPieces() > limit {
		return invalid(`too many pieces: %d > %d`, fs.NumPieces(), limit)
	}
	if limit := p.settings.MaxFiles; limit > 0 && fs.NumFiles() > limit {
		return invalid(`too many files: %d > %d`, fs.NumFiles(), limit)
	}

	m.files, m.origFiles = fs, fs
	if m.hasV1 {
		m.pieceHashes = append(common.PieceHashes(nil), pieces...)
		m.infoHashes.V1 = sha1.Sum(m.infoSection)
	}
	if m.hasV2 {
		m.infoHashes.V2 = sha256.Sum256(m.infoSection)
	}

	if priv, ok := info.DictFindInt(`private`); ok && priv == 1 {
		m.private = true
	}
	m.similar = append(m.similar, p.parseSimilar(info)...)
	m.collections = append(m.collections, p.parseCollections(info)...)

	return nil
}

func (p *_Parser) parseV1Files(name string, pieceLength int, info bencode.Node) (*storage.FileStorage, error) {
	b := storage.NewBuilder(name, pieceLength)

	if length, ok := info.DictFindInt(`length`); ok {
		attr, _ := info.DictFindString(`attr`)
		b.SetSingle(true)
		b.AddFile([]string{name}, length, storage.ParseAttr(attr)&^storage.FlagPad)
		return b.Build()
	}

	files, ok := info.DictFindList(`files`)
	if !ok {
		return nil, invalid(`missing length or files`)
	}
	for i, f := range files.List() {
		if f.Kind() != bencode.KindDict {
			return nil, invalid(`file %d is not a dictionary`, i)
		}
		length, ok := f.DictFindInt(`length`)
		if !ok {
			return nil, invalid(`file %d: missing length`, i)
		}
		pathNode, ok := f.DictFindList(`path.utf-8`)
		if !ok {
			pathNode, ok = f.DictFindList(`path`)
		}
		if !ok {
			return nil, invalid(`file %d: missing path`, i)
		}
		segments, err := stringList(pathNode)
		if err != nil {
			return nil, invalid(`file %d: path: %v`, i, err)
		}
		attr, _ := f.DictFindString(`attr`)
		entry := b.AddFile(segments, length, storage.ParseAttr(attr))
		if entry.Flags&storage.FlagSymlink != 0 {
			if target, ok := f.DictFindList(`symlink path`); ok {
				entry.SymlinkPath, _ = stringList(target)
			}
		}
	}
	return b.Build()
}

type _TreeFile struct {
	path  []string
	entry bencode.Node
}

func (p *_Parser) parseV2Files(name string, pieceLength int, tree bencode.Node) (*storage.FileStorage, error) {
	var leaves []_TreeFile
	if err := walkFileTree(tree, nil, &leaves); err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, invalid(`empty file tree`)
	}

	b := storage.NewBuilder(name, pieceLength)
	b.SetSingle(len(leaves) == 1 && len(leaves[0].path) == 1 && leaves[0].path[0] == name)

	for i, leaf := range leaves {
		length, ok := leaf.entry.DictFindInt(`length`)
		if !ok {
			return nil, invalid(`%s: missing length`, strings.Join(leaf.path, `/`))
		}
		attr, _ := leaf.entry.DictFindString(`attr`)
		flags := storage.ParseAttr(attr) &^ storage.FlagPad

		var root common.Hash256
		if length > 0 {
			raw, ok := leaf.entry.DictFindBytes(`pieces root`)
			if !ok {
				return nil, invalid(`%s: missing pieces root`, strings.Join(leaf.path, `/`))
			}
			if root, ok = hash256(raw); !ok {
				return nil, invalid(`%s: pieces root is not %d bytes`, strings.Join(leaf.path, `/`), sha256.Size)
			}
		}

		entry := b.AddFile(leaf.path, length, flags)
		entry.PiecesRoot = root
		if flags&storage.FlagSymlink != 0 {
			if target, ok := leaf.entry.DictFindList(`symlink path`); ok {
				entry.SymlinkPath, _ = stringList(target)
			}
		}

		if i < len(leaves)-1 {
			b.AlignToPiece()
		}
	}
	return b.Build()
}

// walkFileTree flattens a v2 file tree in source order. A file is a
// dictionary holding the single key "" that maps to its properties.
func walkFileTree(dir bencode.Node, prefix []string, out *[]_TreeFile) error {
	var err error
	dir.Range(func(k, v bencode.Node) bool {
		if v.Kind() != bencode.KindDict {
			err = invalid(`file tree entry %q is not a dictionary`, k.Text())
			return false
		}
		path := append(append([]string(nil), prefix...), k.Text())
		if entry, ok := v.DictFindDict(``); ok {
			if v.DictLen() != 1 {
				err = invalid(`file tree entry %q is both a file and a directory`, strings.Join(path, `/`))
				return false
			}
			*out = append(*out, _TreeFile{path: path, entry: entry})
			return true
		}
		if v.DictLen() == 0 {
			err = invalid(`empty directory %q in file tree`, strings.Join(path, `/`))
			return false
		}
		err = walkFileTree(v, path, out)
		return err == nil
	})
	return err
}

// checkHybrid makes sure the v1 and v2 views describe the same files at
// the same piece-aligned offsets.
func checkHybrid(v1fs, v2fs *storage.FileStorage) error {
	v1files := dataFiles(v1fs)
	v2files := dataFiles(v2fs)
	if len(v1files) != len(v2files) {
		return integrity(`v1 has %d files, v2 has %d`, len(v1files), len(v2files))
	}
	for i := range v1files {
		a, b := v1files[i], v2files[i]
		if strings.Join(a.Path, `/`) != strings.Join(b.Path, `/`) {
			return integrity(`file %d: v1 path %q, v2 path %q`, i, strings.Join(a.Path, `/`), strings.Join(b.Path, `/`))
		}
		if a.Size != b.Size {
			return integrity(`file %q: v1 size %d, v2 size %d`, strings.Join(a.Path, `/`), a.Size, b.Size)
		}
		if a.Offset != b.Offset {
			return invalid(`file %q is not piece aligned in the v1 file list`, strings.Join(a.Path, `/`))
		}
	}
	if v1fs.NumPieces() != v2fs.NumPieces() {
		return integrity(`v1 has %d pieces, v2 has %d`, v1fs.NumPieces(), v2fs.NumPieces())
	}
	return nil
}

func dataFiles(fs *storage.FileStorage) []storage.FileEntry {
	return lo.Filter(fs.Files(), func(f storage.FileEntry, _ int) bool {
		return !f.IsPad()
	})
}

func (p *_Parser) parsePieceLayers(m *Metainfo, root bencode.Node) error {
	layers, hasLayers := root.DictFindDict(`piece layers`)
	fs := m.origFiles
	pl := int64(fs.PieceLength())

	m.pieceLayers = make([][]common.Hash256, fs.NumFiles())
	for i, f := range fs.Files() {
		if f.IsPad() || f.Size <= pl {
			continue
		}
		name := fs.FilePath(i)
		if !hasLayers {
			return invalid(`missing piece layers`)
		}
		raw, ok := layers.DictFindBytes(string(f.PiecesRoot[:]))
		if !ok {
			return invalid(`%s: missing piece layer`, name)
		}
		if len(raw)%sha256.Size != 0 {
			return invalid(`%s: piece layer is not a multiple of %d bytes`, name, sha256.Size)
		}
		want := int((f.Size + pl - 1) / pl)
		if len(raw)/sha256.Size != want {
			return invalid(`%s: piece layer has %d hashes, want %d`, name, len(raw)/sha256.Size, want)
		}
		layer := make([]common.Hash256, want)
		for j := range layer {
			copy(layer[j][:], raw[j*sha256.Size:])
		}
		if p.settings.VerifyPieceLayers {
			if got := merkle.RootFromLayer(layer, int(pl)); got != f.PiecesRoot {
				return integrity(`%s: piece layer reduces to %s, pieces root is %s`, name, got, f.PiecesRoot)
			}
		}
		m.pieceLayers[i] = layer
	}
	return nil
}

func (p *_Parser) parseTopLevel(m *Metainfo, root bencode.Node) {
	seen := make(map[string]bool)
	addTracker := func(u string, tier int) {
		u = strings.TrimSpace(u)
		if u == `` || seen[u] {
			return
		}
		seen[u] = true
		m.trackers = append(m.trackers, Tracker{URL: u, Tier: tier})
	}

	if tiers, ok := root.DictFindList(`announce-list`); ok {
		// tiers are numbered densely, skipping the ones left empty.
		tier := 0
		for i, list := range tiers.List() {
			if list.Kind() != bencode.KindList {
				p.log.Debug(`ignoring malformed announce-list tier`, slog.Int(`tier`, i))
				continue
			}
			n := len(m.trackers)
			for _, u := range list.List() {
				addTracker(u.Text(), tier)
			}
			if len(m.trackers) > n {
				tier++
			}
		}
	}
	if len(m.trackers) == 0 {
		if u, ok := root.DictFindString(`announce`); ok {
			addTracker(u, 0)
		}
	}
	for _, t := range m.trackers {
		if u, err := url.Parse(t.URL); err == nil && strings.HasSuffix(u.Hostname(), `.i2p`) {
			m.i2p = true
		}
	}

	if seeds, ok := root.DictFind(`url-list`); ok {
		switch seeds.Kind() {
		case bencode.KindString:
			if s := seeds.Text(); s != `` {
				m.webSeeds = append(m.webSeeds, s)
			}
		case bencode.KindList:
			for _, s := range seeds.List() {
				if s.Kind() == bencode.KindString && len(s.Bytes()) > 0 {
					m.webSeeds = append(m.webSeeds, s.Text())
				}
			}
		}
	}

	if nodes, ok := root.DictFindList(`nodes`); ok {
		for i, n := range nodes.List() {
			host, port := n.ListAt(0), n.ListAt(1)
			if n.ListLen() != 2 || host.Kind() != bencode.KindString || port.Kind() != bencode.KindInt {
				p.log.Debug(`ignoring malformed node`, slog.Int(`index`, i))
				continue
			}
			m.nodes = append(m.nodes, Node{Host: host.Text(), Port: int(port.Int())})
		}
	}

	m.creationDate, _ = root.DictFindInt(`creation date`)
	if c, ok := root.DictFindString(`comment.utf-8`); ok {
		m.comment = c
	} else {
		m.comment, _ = root.DictFindString(`comment`)
	}
	m.creator, _ = root.DictFindString(`created by`)

	m.topSimilar = p.parseSimilar(root)
	m.topCollections = p.parseCollections(root)
}

func (p *_Parser) parseSimilar(dict bencode.Node) []common.Hash {
	list, ok := dict.DictFindList(`similar`)
	if !ok {
		return nil
	}
	var hashes []common.Hash
	for i, n := range list.List() {
		if b := n.Bytes(); len(b) == sha1.Size {
			var h common.Hash
			copy(h[:], b)
			hashes = append(hashes, h)
			continue
		}
		p.log.Debug(`ignoring malformed similar hash`, slog.Int(`index`, i))
	}
	return hashes
}

func (p *_Parser) parseCollections(dict bencode.Node) []string {
	list, ok := dict.DictFindList(`collections`)
	if !ok {
		return nil
	}
	var names []string
	for _, n := range list.List() {
		if n.Kind() == bencode.KindString {
			names = append(names, n.Text())
		}
	}
	return names
}

func stringList(list bencode.Node) ([]string, error) {
	items := list.List()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.Kind() != bencode.KindString {
			return nil, fmt.Errorf(`expected string, got %v`, item.Kind())
		}
		out = append(out, item.Text())
	}
	return out, nil
}

func hash256(b []byte) (common.Hash256, bool) {
	h, err := common.Hash256FromBytes(b)
	return h, err == nil
}
