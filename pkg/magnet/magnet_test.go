package magnet

import (
	"bytes"
	"encoding/base32"
	"io"
	"strings"
	"testing"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, version torrent.Version) *torrent.Metainfo {
	t.Helper()
	data := bytes.Repeat([]byte(`magnet`), 10000)
	c := &torrent.Creator{
		Name: `a file.bin`,
		Files: []torrent.SourceFile{{
			Path: []string{`a file.bin`},
			Size: int64(len(data)),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		}},
		Version:     version,
		PieceLength: 16384,
		Trackers:    []string{`http://tracker.example/announce?a=1&b=2`, `udp://other:80`},
		WebSeeds:    []string{`http://seed.example/files/`},
	}
	b, err := c.Build()
	require.NoError(t, err)
	m, err := torrent.Load(b)
	require.NoError(t, err)
	return m
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []torrent.Version{torrent.V1, torrent.V2, torrent.Hybrid} {
		version := version
		t.Run(version.String(), func(t *testing.T) {
			m := load(t, version)
			uri, err := FromMetainfo(m)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(uri, `magnet:?xt=urn:`))

			mag, err := Parse(uri)
			require.NoError(t, err)
			assert.Equal(t, m.InfoHashes(), mag.InfoHashes)
			assert.Equal(t, `a file.bin`, mag.Name)
			assert.Equal(t, []string{`http://tracker.example/announce?a=1&b=2`, `udp://other:80`}, mag.Trackers)
			assert.Equal(t, []string{`http://seed.example/files/`}, mag.WebSeeds)
			assert.Equal(t, uri, mag.String())
		})
	}
}

func TestFormat(t *testing.T) {
	v1, err := common.HashFromString(`0123456789abcdef0123456789abcdef01234567`)
	require.NoError(t, err)
	m := Magnet{
		InfoHashes: common.InfoHashes{V1: v1},
		Name:       `a b`,
		Trackers:   []string{`http://t/announce`},
	}
	assert.Equal(t,
		`magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=a+b&tr=http%3A%2F%2Ft%2Fannounce`,
		m.String(),
	)
}

func TestInvalidMetainfo(t *testing.T) {
	_, err := FromMetainfo(&torrent.Metainfo{})
	assert.ErrorIs(t, err, ErrNoInfoHash)
	_, err = FromMetainfo(nil)
	assert.ErrorIs(t, err, ErrNoInfoHash)
}

func TestParse(t *testing.T) {
	const hexHash = `0123456789abcdef0123456789abcdef01234567`
	v1, _ := common.HashFromString(hexHash)
	b32 := base32.StdEncoding.EncodeToString(v1[:])

	var tests = []struct {
		name   string
		uri    string
		assert func(t *testing.T, m Magnet, err error)
	}{
		{
			name: "hex",
			uri:  `magnet:?xt=urn:btih:` + hexHash,
			assert: func(t *testing.T, m Magnet, err error) {
				require.NoError(t, err)
				assert.Equal(t, v1, m.InfoHashes.V1)
				assert.False(t, m.InfoHashes.HasV2())
			},
		},
		{
			name: "base32, lower case",
			uri:  `MAGNET:?xt=urn:btih:` + strings.ToLower(b32),
			assert: func(t *testing.T, m Magnet, err error) {
				require.NoError(t, err)
				assert.Equal(t, v1, m.InfoHashes.V1)
			},
		},
		{
			name: "indexed keys",
			uri:  `magnet:?xt.1=urn:btih:` + hexHash + `&xt.2=urn:btmh:1220` + strings.Repeat(`ab`, 32) + `&tr.1=a&tr.2=b&tr.3=a&x.pe=1.2.3.4:5`,
			assert: func(t *testing.T, m Magnet, err error) {
				require.NoError(t, err)
				assert.True(t, m.InfoHashes.HasV1())
				assert.Equal(t, strings.Repeat(`ab`, 32), m.InfoHashes.V2.String())
				assert.Equal(t, []string{`a`, `b`}, m.Trackers)
				assert.Equal(t, []string{`1.2.3.4:5`}, m.Peers)
			},
		},
		{
			name: "malformed topics are skipped",
			uri:  `magnet:?xt=urn:btih:zz&xt=urn:btmh:1114` + strings.Repeat(`ab`, 32) + `&xt=urn:btih:` + hexHash + `&foo=bar`,
			assert: func(t *testing.T, m Magnet, err error) {
				require.NoError(t, err)
				assert.Equal(t, v1, m.InfoHashes.V1)
				assert.False(t, m.InfoHashes.HasV2())
			},
		},
		{
			name: "no usable topic",
			uri:  `magnet:?xt=urn:btih:short&dn=x`,
			assert: func(t *testing.T, m Magnet, err error) {
				assert.ErrorIs(t, err, ErrNoInfoHash)
			},
		},
		{
			name: "not a magnet",
			uri:  `http://example.com/?xt=urn:btih:` + hexHash,
			assert: func(t *testing.T, m Magnet, err error) {
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrNoInfoHash)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.uri)
			tt.assert(t, m, err)
		})
	}
}
