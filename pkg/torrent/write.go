package torrent

import (
	"bytes"
	"io"

	"github.com/movsb/torrentinfo/pkg/common"
	"github.com/samber/lo"
	"github.com/zeebo/bencode"
)

// Encode writes the metainfo back as a torrent file. The info dictionary
// is kept byte for byte so the info-hashes do not change; the other keys
// are regenerated from the parsed values.
func (m *Metainfo) Encode() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if _, err := m.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo implements io.WriterTo.
func (m *Metainfo) WriteTo(w io.Writer) (int64, error) {
	b, err := bencode.EncodeBytes(m.topLevel())
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

func (m *Metainfo) topLevel() map[string]interface{} {
	d := map[string]interface{}{
		`info`: bencode.RawMessage(m.infoSection),
	}

	if len(m.trackers) > 0 {
		d[`announce`] = m.trackers[0].URL
		var tiers [][]string
		for _, t := range m.trackers {
			for len(tiers) <= t.Tier {
				tiers = append(tiers, nil)
			}
			tiers[t.Tier] = append(tiers[t.Tier], t.URL)
		}
		if len(m.trackers) > 1 {
			d[`announce-list`] = tiers
		}
	}
	if len(m.webSeeds) == 1 {
		d[`url-list`] = m.webSeeds[0]
	} else if len(m.webSeeds) > 1 {
		d[`url-list`] = m.webSeeds
	}
	if len(m.nodes) > 0 {
		nodes := make([]interface{}, 0, len(m.nodes))
		for _, n := range m.nodes {
			nodes = append(nodes, []interface{}{n.Host, n.Port})
		}
		d[`nodes`] = nodes
	}
	if m.comment != `` {
		d[`comment`] = m.comment
	}
	if m.creator != `` {
		d[`created by`] = m.creator
	}
	if m.creationDate != 0 {
		d[`creation date`] = m.creationDate
	}
	if len(m.topSimilar) > 0 {
		d[`similar`] = lo.Map(m.topSimilar, func(h common.Hash, _ int) string {
			return string(h[:])
		})
	}
	if len(m.topCollections) > 0 {
		d[`collections`] = m.topCollections
	}

	if layers := m.encodePieceLayers(); len(layers) > 0 {
		d[`piece layers`] = layers
	}
	return d
}

func (m *Metainfo) encodePieceLayers() map[string]string {
	if !m.hasV2 || m.layersFreed {
		return nil
	}
	files := m.origFiles.Files()
	layers := make(map[string]string)
	for i, layer := range m.pieceLayers {
		if len(layer) == 0 {
			continue
		}
		var b []byte
		for _, h := range layer {
			b = append(b, h[:]...)
		}
		layers[string(files[i].PiecesRoot[:])] = string(b)
	}
	return layers
}
