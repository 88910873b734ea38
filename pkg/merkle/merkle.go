// Package merkle builds the SHA256 hash trees used by v2 torrents.
//
// Leaves are hashes of 16 KiB blocks. Trees are always built bottom-up over
// a flat array, padded on the right to a power-of-two width.
package merkle

import (
	"crypto/sha256"
	"math/bits"

	"github.com/movsb/torrentinfo/pkg/common"
)

// BlockSize is the size of the data covered by one leaf.
const BlockSize = 16 << 10

// NextPow2 returns the smallest power of two >= n, and 1 for n <= 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Log2 returns the base-2 logarithm of a power of two.
func Log2(n int) int {
	return bits.TrailingZeros(uint(n))
}

// BlocksPerPiece ...
func BlocksPerPiece(pieceLength int) int {
	return pieceLength / BlockSize
}

// PadHash is the root of a subtree of 1<<level zero leaves.
func PadHash(level int) common.Hash256 {
	var h common.Hash256
	for i := 0; i < level; i++ {
		h = HashPair(h, h)
	}
	return h
}

// HashPair ...
func HashPair(left, right common.Hash256) common.Hash256 {
	var buf [2 * sha256.Size]byte
	copy(buf[:sha256.Size], left[:])
	copy(buf[sha256.Size:], right[:])
	return sha256.Sum256(buf[:])
}

// BlockHashes hashes data in BlockSize chunks. A short final block is
// hashed as it is, without zero fill.
func BlockHashes(data []byte) []common.Hash256 {
	hashes := make([]common.Hash256, 0, (len(data)+BlockSize-1)/BlockSize)
	for len(data) > 0 {
		n := BlockSize
		if n > len(data) {
			n = len(data)
		}
		hashes = append(hashes, sha256.Sum256(data[:n]))
		data = data[n:]
	}
	return hashes
}

// Reduce returns the root of the tree whose layer at the given level is
// layer, padded to the next power of two with PadHash(level).
func Reduce(layer []common.Hash256, level int) common.Hash256 {
	return reduce(layer, level, NextPow2(len(layer)))
}

func reduce(layer []common.Hash256, level int, width int) common.Hash256 {
	if len(layer) == 0 {
		return common.Hash256{}
	}

	nodes := make([]common.Hash256, width)
	n := copy(nodes, layer)
	if n < width {
		pad := PadHash(level)
		for i := n; i < width; i++ {
			nodes[i] = pad
		}
	}

	// each pass halves the width; results are written in place.
	for len(nodes) > 1 {
		half := len(nodes) / 2
		for i := 0; i < half; i++ {
			nodes[i] = HashPair(nodes[2*i], nodes[2*i+1])
		}
		nodes = nodes[:half]
	}
	return nodes[0]
}

// PieceLayer groups leaf hashes into pieces of pieceLength bytes and
// returns one hash per piece. The final piece is padded with zero leaves
// to the full piece width.
func PieceLayer(leaves []common.Hash256, pieceLength int) []common.Hash256 {
	per := BlocksPerPiece(pieceLength)
	layer := make([]common.Hash256, 0, (len(leaves)+per-1)/per)
	for len(leaves) > 0 {
		n := per
		if n > len(leaves) {
			n = len(leaves)
		}
		layer = append(layer, reduce(leaves[:n], 0, per))
		leaves = leaves[n:]
	}
	return layer
}

// PieceHash returns the piece-layer hash of one piece worth of file data.
func PieceHash(data []byte, pieceLength int) common.Hash256 {
	return reduce(BlockHashes(data), 0, BlocksPerPiece(pieceLength))
}

// RootFromLayer reduces a piece layer to the file root.
func RootFromLayer(layer []common.Hash256, pieceLength int) common.Hash256 {
	return Reduce(layer, Log2(BlocksPerPiece(pieceLength)))
}

// FileRoot is the "pieces root" of a file given all of its data.
func FileRoot(data []byte) common.Hash256 {
	return Reduce(BlockHashes(data), 0)
}
