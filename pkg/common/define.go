package common

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a SHA1 digest, used for v1 info-hashes and v1 piece hashes.
type Hash [sha1.Size]byte

// HashFromString parses a 40 character hex string.
func HashFromString(s string) (Hash, error) {
	var h Hash
	if len(s) != hex.EncodedLen(sha1.Size) {
		return h, fmt.Errorf(`hash string length is not equal to %d`, hex.EncodedLen(sha1.Size))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, err
	}
	return h, nil
}

// Equal ...
func (h Hash) Equal(other Hash) bool {
	return bytes.Equal(h[:], other[:])
}

// IsZero ...
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalYAML ...
func (h Hash) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// Hash256 is a SHA256 digest, used for v2 info-hashes and merkle trees.
type Hash256 [sha256.Size]byte

// Hash256FromBytes copies b, which must be 32 bytes long.
func Hash256FromBytes(b []byte) (Hash256, error) {
	var h Hash256
	if len(b) != sha256.Size {
		return h, fmt.Errorf(`hash length is not equal to %d`, sha256.Size)
	}
	copy(h[:], b)
	return h, nil
}

// IsZero ...
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalYAML ...
func (h Hash256) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// InfoHashes holds the v1 and/or v2 info-hash of a torrent.
// A hybrid torrent has both.
type InfoHashes struct {
	V1 Hash
	V2 Hash256
}

// HasV1 ...
func (ih InfoHashes) HasV1() bool {
	return !ih.V1.IsZero()
}

// HasV2 ...
func (ih InfoHashes) HasV2() bool {
	return !ih.V2.IsZero()
}

// IsZero reports whether neither hash is set.
func (ih InfoHashes) IsZero() bool {
	return !ih.HasV1() && !ih.HasV2()
}

// Best returns the v1 hash if present, otherwise the v2 hash truncated
// to 20 bytes, which is what v2-only swarms use on the wire.
func (ih InfoHashes) Best() Hash {
	if ih.HasV1() {
		return ih.V1
	}
	var h Hash
	copy(h[:], ih.V2[:])
	return h
}

// MarshalYAML leaves out the missing hash.
func (ih InfoHashes) MarshalYAML() (interface{}, error) {
	m := make(map[string]string, 2)
	if ih.HasV1() {
		m[`v1`] = ih.V1.String()
	}
	if ih.HasV2() {
		m[`v2`] = ih.V2.String()
	}
	return m, nil
}

// PieceHashes is the concatenated v1 piece hash blob.
type PieceHashes []byte

// Count ...
func (p PieceHashes) Count() int {
	return len(p) / sha1.Size
}

// Index ...
func (p PieceHashes) Index(index int) Hash {
	var h Hash
	s := sha1.Size * index
	copy(h[:], p[s:s+sha1.Size])
	return h
}
