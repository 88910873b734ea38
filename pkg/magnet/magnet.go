// Package magnet converts between torrents and magnet URIs.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/movsb/torrentinfo/pkg/torrent"
	"github.com/samber/lo"
)

// ErrNoInfoHash is returned when there is no info-hash to put into or get
// out of a magnet URI.
var ErrNoInfoHash = errors.New(`magnet: no info-hash`)

const (
	btihPrefix = `urn:btih:`
	btmhPrefix = `urn:btmh:`

	// multihash header of a 32 byte sha2-256 digest.
	sha256Multihash = `1220`
)

// Magnet ...
type Magnet struct {
	InfoHashes common.InfoHashes `yaml:"info_hashes"`
	Name       string            `yaml:"name,omitempty"`
	Trackers   []string          `yaml:"trackers,omitempty"`
	WebSeeds   []string          `yaml:"web_seeds,omitempty"`
	Peers      []string          `yaml:"peers,omitempty"`
}

// FromMetainfo makes a magnet URI for a loaded torrent.
func FromMetainfo(m *torrent.Metainfo) (string, error) {
	if !m.IsValid() {
		return ``, ErrNoInfoHash
	}
	mag := Magnet{
		InfoHashes: m.InfoHashes(),
		Name:       m.Name(),
		Trackers: lo.Map(m.Trackers(), func(t torrent.Tracker, _ int) string {
			return t.URL
		}),
		WebSeeds: m.WebSeeds(),
	}
	return mag.String(), nil
}

// String formats the magnet URI. The v1 hash comes first, then the v2
// one.
func (m Magnet) String() string {
	var b strings.Builder
	b.WriteString(`magnet:?`)

	sep := ``
	add := func(key, value string) {
		b.WriteString(sep)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		sep = `&`
	}

	if m.InfoHashes.HasV1() {
		add(`xt`, btihPrefix+m.InfoHashes.V1.String())
	}
	if m.InfoHashes.HasV2() {
		add(`xt`, btmhPrefix+sha256Multihash+m.InfoHashes.V2.String())
	}
	if m.Name != `` {
		add(`dn`, url.QueryEscape(m.Name))
	}
	for _, tr := range m.Trackers {
		add(`tr`, url.QueryEscape(tr))
	}
	for _, ws := range m.WebSeeds {
		add(`ws`, url.QueryEscape(ws))
	}
	for _, pe := range m.Peers {
		add(`x.pe`, pe)
	}
	return b.String()
}

// Parse reads a magnet URI. Unknown parameters and malformed exact topics
// are ignored; it fails only if no info-hash can be found.
func Parse(uri string) (Magnet, error) {
	var m Magnet

	const scheme = `magnet:?`
	if len(uri) < len(scheme) || !strings.EqualFold(uri[:len(scheme)], scheme) {
		return m, fmt.Errorf(`magnet: not a magnet uri: %q`, uri)
	}

	for _, param := range strings.Split(uri[len(scheme):], `&`) {
		key, value, _ := strings.Cut(param, `=`)
		value, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		switch baseKey(key) {
		case `xt`:
			parseTopic(&m.InfoHashes, value)
		case `dn`:
			if m.Name == `` {
				m.Name = value
			}
		case `tr`:
			m.Trackers = append(m.Trackers, value)
		case `ws`:
			m.WebSeeds = append(m.WebSeeds, value)
		case `x.pe`:
			m.Peers = append(m.Peers, value)
		}
	}

	if m.InfoHashes.IsZero() {
		return Magnet{}, ErrNoInfoHash
	}
	m.Trackers = lo.Uniq(m.Trackers)
	m.WebSeeds = lo.Uniq(m.WebSeeds)
	return m, nil
}

// baseKey strips the index suffix of keys like `xt.1`.
func baseKey(key string) string {
	if i := strings.LastIndexByte(key, '.'); i > 0 {
		if _, err := strconv.Atoi(key[i+1:]); err == nil {
			return key[:i]
		}
	}
	return key
}

func parseTopic(ih *common.InfoHashes, xt string) {
	switch {
	case hasPrefixFold(xt, btihPrefix):
		if h, ok := parseBtih(xt[len(btihPrefix):]); ok && ih.V1.IsZero() {
			ih.V1 = h
		}
	case hasPrefixFold(xt, btmhPrefix):
		s := xt[len(btmhPrefix):]
		if !strings.HasPrefix(s, sha256Multihash) {
			return
		}
		b, err := hex.DecodeString(s[len(sha256Multihash):])
		if err != nil {
			return
		}
		if h, err := common.Hash256FromBytes(b); err == nil && ih.V2.IsZero() {
			ih.V2 = h
		}
	}
}

func parseBtih(s string) (common.Hash, bool) {
	var h common.Hash
	switch len(s) {
	case 40:
		if _, err := hex.Decode(h[:], []byte(s)); err != nil {
			return h, false
		}
		return h, true
	case 32:
		b, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
		if err != nil || len(b) != len(h) {
			return h, false
		}
		copy(h[:], b)
		return h, true
	}
	return h, false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
