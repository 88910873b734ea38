package torrent

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"strings"
	"testing"

	"github.com/movsb/torrentinfo/pkg/bencode"
	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/merkle"
	"github.com/movsb/torrentinfo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zeebo "github.com/zeebo/bencode"
)

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := zeebo.EncodeBytes(v)
	require.NoError(t, err)
	return b
}

type dict = map[string]interface{}

func v1Info(pieceLength int, sizes ...int64) dict {
	var total int64
	files := []interface{}{}
	for i, size := range sizes {
		files = append(files, dict{
			`length`: size,
			`path`:   []string{string(rune('a' + i))},
		})
		total += size
	}
	n := (total + int64(pieceLength) - 1) / int64(pieceLength)
	return dict{
		`name`:         `test`,
		`piece length`: pieceLength,
		`pieces`:       strings.Repeat(`x`, int(n)*sha1.Size),
		`files`:        files,
	}
}

func TestLoadErrors(t *testing.T) {
	var tests = []struct {
		name  string
		input interface{}
		err   error
	}{
		{name: "not a dict", input: []int{1}, err: common.ErrInvalidMetainfo},
		{name: "no info", input: dict{`announce`: `x`}, err: common.ErrInvalidMetainfo},
		{name: "info is a list", input: dict{`info`: []int{}}, err: common.ErrInvalidMetainfo},
		{name: "bad name", input: dict{`info`: func() dict { d := v1Info(16, 10); d[`name`] = `..`; return d }()}, err: common.ErrInvalidMetainfo},
		{name: "zero piece length", input: dict{`info`: func() dict { d := v1Info(16, 10); d[`piece length`] = 0; return d }()}, err: common.ErrInvalidMetainfo},
		{name: "pieces not multiple of 20", input: dict{`info`: func() dict { d := v1Info(16, 10); d[`pieces`] = `abc`; return d }()}, err: common.ErrInvalidMetainfo},
		{name: "piece count mismatch", input: dict{`info`: func() dict { d := v1Info(16, 10); d[`pieces`] = strings.Repeat(`x`, 40); return d }()}, err: common.ErrInvalidMetainfo},
		{name: "bad path", input: dict{`info`: func() dict {
			d := v1Info(16, 10)
			d[`files`] = []interface{}{dict{`length`: 10, `path`: []string{`a`, `..`}}}
			return d
		}()}, err: common.ErrInvalidMetainfo},
		{name: "meta version 3", input: dict{`info`: func() dict { d := v1Info(16, 10); d[`meta version`] = 3; return d }()}, err: common.ErrInvalidMetainfo},
		{name: "no files", input: dict{`info`: dict{`name`: `x`, `piece length`: 16, `pieces`: ``}}, err: common.ErrInvalidMetainfo},
		{name: "empty torrent", input: dict{`info`: func() dict { d := v1Info(16, 0); d[`pieces`] = ``; return d }()}, err: common.ErrInvalidMetainfo},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(encode(t, tt.input))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadDecodeError(t *testing.T) {
	_, err := Load([]byte(`d3:foo3:bar`))
	var de *bencode.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 6, de.Offset)
	assert.ErrorIs(t, err, bencode.ErrUnexpectedEOF)
}

func TestLoadLimits(t *testing.T) {
	b := encode(t, dict{`info`: v1Info(16, 10, 10)})

	_, err := Load(b, WithSettings(Settings{MaxFiles: 1}))
	assert.ErrorIs(t, err, common.ErrInvalidMetainfo)

	_, err = Load(b, WithSettings(Settings{MaxPieces: 1}))
	assert.ErrorIs(t, err, common.ErrInvalidMetainfo)

	s := DefaultSettings()
	s.MaxDepth = 2
	_, err = Load(b, WithSettings(s))
	assert.ErrorIs(t, err, bencode.ErrStructureTooDeep)

	m, err := Load(b, WithSettings(Settings{}))
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumFiles())
}

func TestTopLevelFields(t *testing.T) {
	info := v1Info(16, 10)
	info[`private`] = 1
	info[`similar`] = []string{strings.Repeat(`s`, 20), `short`}
	info[`x-custom`] = `kept`
	b := encode(t, dict{
		`info`:     info,
		`announce`: `http://ignored/announce`,
		`announce-list`: []interface{}{
			[]string{`http://a/announce`, `http://b/announce`},
			[]string{`http://a/announce`, `http://tracker.i2p/announce`},
			`not a tier`,
		},
		`url-list`:      `http://seed/`,
		`nodes`:         []interface{}{[]interface{}{`router.example`, 6881}, []interface{}{1, 2}},
		`comment`:       `plain`,
		`comment.utf-8`: `unicode`,
		`created by`:    `me`,
		`creation date`: 1700000000,
		`collections`:   []string{`col`},
	})
	m := mustLoad(t, b)

	assert.Equal(t, []Tracker{
		{URL: `http://a/announce`, Tier: 0},
		{URL: `http://b/announce`, Tier: 0},
		{URL: `http://tracker.i2p/announce`, Tier: 1},
	}, m.Trackers())
	assert.True(t, m.I2P())
	assert.True(t, m.Private())
	assert.Equal(t, []string{`http://seed/`}, m.WebSeeds())
	assert.Equal(t, []Node{{Host: `router.example`, Port: 6881}}, m.Nodes())
	assert.Equal(t, `unicode`, m.Comment())
	assert.Equal(t, `me`, m.Creator())
	assert.Equal(t, int64(1700000000), m.CreationDate())
	assert.Equal(t, []string{`col`}, m.Collections())
	require.Len(t, m.SimilarTorrents(), 1)
	assert.Equal(t, strings.Repeat(`73`, 20), m.SimilarTorrents()[0].String())

	custom, ok := m.InfoField(`x-custom`)
	require.True(t, ok)
	assert.Equal(t, `kept`, custom.Text())
}

func TestInfoSectionIsOwned(t *testing.T) {
	b := encode(t, dict{`info`: v1Info(16, 10)})
	m := mustLoad(t, b)
	hash := m.InfoHash()

	for i := range b {
		b[i] = 0
	}
	assert.Equal(t, hash, m.InfoHash())
	assert.Equal(t, [sha1.Size]byte(hash), sha1.Sum(m.InfoSection()))
	assert.Equal(t, `test`, m.Name())
}

func TestRenameFile(t *testing.T) {
	m := mustLoad(t, encode(t, dict{`info`: v1Info(16384, 10000, 20000)}))

	require.NoError(t, m.RenameFile(0, `new/name.bin`))
	assert.Equal(t, []string{`new`, `name.bin`}, m.Files().File(0).Path)
	assert.Equal(t, []string{`a`}, m.OrigFiles().File(0).Path)

	slices, err := m.MapBlock(0, 0, 16384)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), slices[0].Size)

	assert.ErrorIs(t, m.RenameFile(9, `x`), common.ErrPrecondition)
}

func TestRemapFiles(t *testing.T) {
	m := mustLoad(t, encode(t, dict{`info`: v1Info(16384, 10000, 20000)}))

	b := storage.NewBuilder(`joined`, 1)
	b.AddFile([]string{`all`}, 30000, 0)
	fs, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, m.RemapFiles(fs))
	assert.Equal(t, 1, m.NumFiles())
	assert.Equal(t, 2, m.NumPieces())
	assert.Equal(t, 16384, m.Files().PieceLength())
	assert.Equal(t, 2, m.OrigFiles().NumFiles())

	b = storage.NewBuilder(`short`, 16384)
	b.AddFile([]string{`x`}, 100, 0)
	short, err := b.Build()
	require.NoError(t, err)
	assert.ErrorIs(t, m.RemapFiles(short), common.ErrSizeMismatch)
	assert.ErrorIs(t, m.RemapFiles(nil), common.ErrPrecondition)
}

func TestTamperedPieceLayer(t *testing.T) {
	c := &Creator{
		Name:        `v2`,
		Files:       memFiles(hybridFiles...),
		Version:     V2,
		PieceLength: 16384,
	}
	good := mustCreate(t, c)
	m := mustLoad(t, good)

	layer := m.PieceLayer(4)
	var raw []byte
	for _, h := range layer {
		raw = append(raw, h[:]...)
	}
	i := bytes.Index(good, raw)
	require.Positive(t, i)

	bad := append([]byte(nil), good...)
	bad[i+5] ^= 1
	_, err := Load(bad)
	assert.ErrorIs(t, err, common.ErrIntegrity)

	s := DefaultSettings()
	s.VerifyPieceLayers = false
	_, err = Load(bad, WithSettings(s))
	assert.NoError(t, err)

	stripped := encode(t, dict{`info`: zeebo.RawMessage(m.InfoSection())})
	_, err = Load(stripped)
	assert.ErrorIs(t, err, common.ErrInvalidMetainfo)
}

func v2Tree(sizes map[string]int64) dict {
	tree := dict{}
	for name, size := range sizes {
		props := dict{`length`: size}
		if size > 0 {
			root := merkle.FileRoot(payload(int(size), 0))
			props[`pieces root`] = string(root[:])
		}
		tree[name] = dict{``: props}
	}
	return tree
}

func TestHybridMismatch(t *testing.T) {
	// v1 lists both files back to back, v2 aligns b to the next piece.
	info := v1Info(16384, 100, 100)
	info[`meta version`] = 2
	info[`file tree`] = v2Tree(map[string]int64{`a`: 100, `b`: 100})
	_, err := Load(encode(t, dict{`info`: info}))
	assert.ErrorIs(t, err, common.ErrInvalidMetainfo)
	assert.NotErrorIs(t, err, common.ErrIntegrity)

	info = v1Info(16384, 100, 100)
	info[`meta version`] = 2
	info[`file tree`] = v2Tree(map[string]int64{`a`: 100, `b`: 200})
	_, err = Load(encode(t, dict{`info`: info}))
	assert.ErrorIs(t, err, common.ErrIntegrity)

	info = v1Info(16384, 100)
	info[`meta version`] = 2
	info[`file tree`] = v2Tree(map[string]int64{`a`: 100, `b`: 100})
	_, err = Load(encode(t, dict{`info`: info}))
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestV2PieceLength(t *testing.T) {
	info := dict{
		`name`:         `x`,
		`piece length`: 10000,
		`meta version`: 2,
		`file tree`:    v2Tree(map[string]int64{`x`: 100}),
	}
	_, err := Load(encode(t, dict{`info`: info}))
	assert.ErrorIs(t, err, common.ErrInvalidMetainfo)

	info[`piece length`] = 16384
	m := mustLoad(t, encode(t, dict{`info`: info}))
	assert.True(t, m.Files().Single())
	assert.Equal(t, `x`, m.Files().FilePath(0))
}

func TestVerifyPiecePreconditions(t *testing.T) {
	m := mustLoad(t, encode(t, dict{`info`: v1Info(16384, 10000, 20000)}))

	_, err := m.VerifyPiece(0, make([]byte, 100))
	assert.ErrorIs(t, err, common.ErrPrecondition)
	_, err = m.VerifyPiece(2, nil)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	_, err = m.HashForPiece(-1)
	assert.ErrorIs(t, err, common.ErrPrecondition)

	ok, err := m.VerifyPiece(1, make([]byte, 30000-16384))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncodeRoundTrip(t *testing.T) {
	c := &Creator{
		Name:         `hybrid`,
		Files:        memFiles(hybridFiles...),
		Version:      Hybrid,
		PieceLength:  16384,
		Trackers:     []string{`http://a/announce`, `udp://b:80`},
		WebSeeds:     []string{`http://seed/`},
		Comment:      `round trip`,
		CreatedBy:    `torrentinfo`,
		CreationDate: 1234,
	}
	original := mustCreate(t, c)
	m := mustLoad(t, original)

	out, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, original, out)

	again := mustLoad(t, out)
	assert.Equal(t, m.InfoHashes(), again.InfoHashes())
	assert.Equal(t, m.Trackers(), again.Trackers())
	assert.Equal(t, m.PieceLayer(4), again.PieceLayer(4))

	m.FreePieceLayers()
	out, err = m.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(out), `piece layers`)
}

func TestEncodeKeepsTopLevelKeys(t *testing.T) {
	info := v1Info(16, 10)
	info[`similar`] = []string{strings.Repeat(`i`, 20)}
	b := encode(t, dict{
		`info`: info,
		`announce-list`: []interface{}{
			[]string{`http://a/announce`},
			[]string{},
			[]string{`http://a/announce`},
			[]string{`http://c/announce`},
		},
		`similar`:     []string{strings.Repeat(`s`, 20)},
		`collections`: []string{`col`},
	})
	m := mustLoad(t, b)
	assert.Equal(t, []Tracker{
		{URL: `http://a/announce`, Tier: 0},
		{URL: `http://c/announce`, Tier: 1},
	}, m.Trackers())
	require.Len(t, m.SimilarTorrents(), 2)

	out, err := m.Encode()
	require.NoError(t, err)
	again := mustLoad(t, out)
	assert.Equal(t, m.Trackers(), again.Trackers())
	assert.Equal(t, m.SimilarTorrents(), again.SimilarTorrents())
	assert.Equal(t, []string{`col`}, again.Collections())
	assert.Equal(t, m.InfoHashes(), again.InfoHashes())

	out2, err := again.Encode()
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(strings.NewReader("max_files: 3\nverify_piece_layers: false\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.MaxFiles)
	assert.False(t, s.VerifyPieceLayers)
	assert.Equal(t, bencode.DefaultMaxDepth, s.MaxDepth)

	s, err = LoadSettings(strings.NewReader(``))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	_, err = LoadSettings(strings.NewReader("unknown: 1\n"))
	assert.Error(t, err)
}
