package poc

import (
	"bytes"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
)

// Pair is one (input, output) observation covered by a proof.
type Pair struct {
	Input  []byte
	Output []byte
}

// Keccak256 hashes data with keccak-256.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// leafList adapts a list of byte strings to go-ethereum's ordered-list root
// derivation, which keys each element by its rlp-encoded index.
type leafList [][]byte

func (l leafList) Len() int { return len(l) }

func (l leafList) EncodeIndex(i int, w *bytes.Buffer) { w.Write(l[i]) }

// OrderedTrieRoot computes the deterministic 32-byte digest of an ordered
// list of byte strings: the zero hash for an empty list, the single leaf
// verbatim, and otherwise the Ethereum-style trie root over
// (rlp(index), leaf) pairs.
func OrderedTrieRoot(leaves [][]byte) [32]byte {
	var root [32]byte
	switch len(leaves) {
	case 0:
		return root
	case 1:
		copy(root[:], leaves[0])
		return root
	}
	return ethtypes.DeriveSha(leafList(leaves), trie.NewStackTrie(nil))
}

// Root computes the proof root over (input, output) pairs: the ordered trie
// root of keccak256(input ‖ output) leaves.
func Root(pairs []Pair) [32]byte {
	leaves := make([][]byte, len(pairs))
	for i, p := range pairs {
		leaves[i] = Keccak256(p.Input, p.Output)
	}
	return OrderedTrieRoot(leaves)
}
