package shared

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"

	"github.com/movsb/torrentinfo/pkg/bencode"
	"gopkg.in/yaml.v3"
)

// ToYAML converts a decoded value into a YAML node, keeping dictionary
// order. Byte strings that are not valid UTF-8 are shown in hex.
// Dictionary entries for which skip returns true are left out; path is
// the list of keys leading to the entry.
func ToYAML(n bencode.Node, skip func(path []string) bool) *yaml.Node {
	return toYAML(n, nil, skip)
}

func toYAML(n bencode.Node, path []string, skip func(path []string) bool) *yaml.Node {
	switch n.Kind() {
	case bencode.KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: `!!int`, Value: strconv.FormatInt(n.Int(), 10)}
	case bencode.KindString:
		return bytesNode(n.Bytes())
	case bencode.KindList:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: `!!seq`}
		for _, item := range n.List() {
			y.Content = append(y.Content, toYAML(item, path, skip))
		}
		return y
	case bencode.KindDict:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: `!!map`}
		n.Range(func(k, v bencode.Node) bool {
			p := append(append([]string(nil), path...), k.Text())
			if skip != nil && skip(p) {
				return true
			}
			y.Content = append(y.Content, bytesNode(k.Bytes()), toYAML(v, p, skip))
			return true
		})
		return y
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: `!!null`, Value: `~`}
}

func bytesNode(b []byte) *yaml.Node {
	if utf8.Valid(b) {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: `!!str`, Value: string(b)}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: `!!str`, Value: hex.EncodeToString(b)}
}
