package integrity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Leaf and interior node hashes carry different prefixes so a node can
// never be presented as a leaf.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// MerkleProof is the sibling path from one leaf up to the root
type MerkleProof struct {
	LeafHash string   `json:"leaf_hash"`
	Index    int      `json:"index"`
	Siblings []string `json:"siblings"`
}

// BuildMerkleTree builds a tree over leaf hashes and returns the root and one
// proof per leaf. A node without a right neighbour is paired with itself, and
// its proof records itself as the sibling so every proof has the same depth.
func BuildMerkleTree(leaves []string) (root string, proofs []MerkleProof) {
	if len(leaves) == 0 {
		return "", nil
	}

	base := make([]string, len(leaves))
	for i, leaf := range leaves {
		base[i] = hashLeaf(leaf)
	}

	layers := [][]string{base}
	for layer := base; len(layer) > 1; {
		next := make([]string, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			left, right := layer[i], layer[i]
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		layers = append(layers, next)
		layer = next
	}
	root = layers[len(layers)-1][0]

	proofs = make([]MerkleProof, len(leaves))
	for leaf := range leaves {
		siblings := make([]string, 0, len(layers)-1)
		idx := leaf
		for _, row := range layers[:len(layers)-1] {
			sibling := idx ^ 1
			if sibling >= len(row) {
				sibling = idx
			}
			siblings = append(siblings, row[sibling])
			idx /= 2
		}
		proofs[leaf] = MerkleProof{LeafHash: leaves[leaf], Index: leaf, Siblings: siblings}
	}

	return root, proofs
}

// MerkleRoot returns only the root of the tree over leaves
func MerkleRoot(leaves []string) string {
	root, _ := BuildMerkleTree(leaves)
	return root
}

// MerkleDepth is the number of siblings in every proof of a tree with
// leafCount leaves
func MerkleDepth(leafCount int) int {
	depth := 0
	for width := leafCount; width > 1; width = (width + 1) / 2 {
		depth++
	}
	return depth
}

// VerifyMerkleProof recomputes the root of a tree with leafCount leaves from
// a proof and compares it with root. The proof must have exactly the tree's
// depth, and the last node of an odd row must be its own sibling.
func VerifyMerkleProof(proof MerkleProof, root string, leafCount int) bool {
	if leafCount <= 0 || proof.Index < 0 || proof.Index >= leafCount {
		return false
	}
	if len(proof.Siblings) != MerkleDepth(leafCount) {
		return false
	}

	hash := hashLeaf(proof.LeafHash)
	idx, width := proof.Index, leafCount
	for _, sibling := range proof.Siblings {
		switch {
		case idx%2 == 1:
			hash = hashPair(sibling, hash)
		case idx+1 == width:
			if sibling != hash {
				return false
			}
			hash = hashPair(hash, hash)
		default:
			hash = hashPair(hash, sibling)
		}
		idx /= 2
		width = (width + 1) / 2
	}
	return hash == root
}

func hashLeaf(leaf string) string {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write([]byte(leaf))
	return hex.EncodeToString(h.Sum(nil))
}

func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}
