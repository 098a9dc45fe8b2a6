package integrity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafSet(n int) []string {
	leaves := make([]string, n)
	for i := range leaves {
		leaves[i] = hashPair(fmt.Sprintf("leaf-%d", i), "")
	}
	return leaves
}

func TestBuildMerkleTreeEmpty(t *testing.T) {
	root, proofs := BuildMerkleTree(nil)
	assert.Empty(t, root)
	assert.Nil(t, proofs)
}

func TestBuildMerkleTreeSingleLeaf(t *testing.T) {
	leaves := leafSet(1)
	root, proofs := BuildMerkleTree(leaves)

	assert.Equal(t, hashLeaf(leaves[0]), root)
	require.Len(t, proofs, 1)
	assert.Empty(t, proofs[0].Siblings)
	assert.True(t, VerifyMerkleProof(proofs[0], root, 1))
}

func TestBuildMerkleTreeOddLeafPairsWithItself(t *testing.T) {
	leaves := leafSet(3)
	root, proofs := BuildMerkleTree(leaves)

	l0, l1, l2 := hashLeaf(leaves[0]), hashLeaf(leaves[1]), hashLeaf(leaves[2])
	expected := hashPair(hashPair(l0, l1), hashPair(l2, l2))
	assert.Equal(t, expected, root)
	assert.Equal(t, []string{l2, hashPair(l0, l1)}, proofs[2].Siblings)
}

func TestEveryProofVerifies(t *testing.T) {
	for n := 1; n <= 17; n++ {
		leaves := leafSet(n)
		root, proofs := BuildMerkleTree(leaves)
		require.Len(t, proofs, n)

		for i, proof := range proofs {
			assert.Equal(t, leaves[i], proof.LeafHash)
			assert.Len(t, proof.Siblings, MerkleDepth(n))
			assert.True(t, VerifyMerkleProof(proof, root, n), "n=%d leaf=%d", n, i)
		}
	}
}

func TestVerifyMerkleProofRejectsTampering(t *testing.T) {
	leaves := leafSet(6)
	root, proofs := BuildMerkleTree(leaves)
	proof := proofs[4]

	wrongLeaf := proof
	wrongLeaf.LeafHash = leaves[3]
	assert.False(t, VerifyMerkleProof(wrongLeaf, root, 6))

	wrongIndex := proof
	wrongIndex.Index = 5
	assert.False(t, VerifyMerkleProof(wrongIndex, root, 6))

	negative := proof
	negative.Index = -1
	assert.False(t, VerifyMerkleProof(negative, root, 6))

	assert.False(t, VerifyMerkleProof(proof, MerkleRoot(leafSet(5)), 5))
	assert.False(t, VerifyMerkleProof(proof, root, 0))
}

func TestMerkleDepth(t *testing.T) {
	for n, depth := range map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 17: 5} {
		assert.Equal(t, depth, MerkleDepth(n), "n=%d", n)
	}
}

func TestVerifyMerkleProofRejectsIndexPastLastLeaf(t *testing.T) {
	leaves := leafSet(3)
	root, proofs := BuildMerkleTree(leaves)

	// The self-paired last leaf also sits at index 3 of the padded row.
	phantom := proofs[2]
	phantom.Index = 3
	phantom.Siblings = []string{hashLeaf(leaves[2]), proofs[2].Siblings[1]}
	assert.False(t, VerifyMerkleProof(phantom, root, 3))
	assert.False(t, VerifyMerkleProof(proofs[2], root, 2))
}

func TestVerifyMerkleProofRejectsInteriorNodeAsLeaf(t *testing.T) {
	leaves := leafSet(4)
	root, proofs := BuildMerkleTree(leaves)

	node := hashPair(hashLeaf(leaves[0]), hashLeaf(leaves[1]))
	forged := MerkleProof{LeafHash: node, Index: 0, Siblings: proofs[0].Siblings[1:]}
	assert.False(t, VerifyMerkleProof(forged, root, 4))

	forged.Siblings = []string{proofs[0].Siblings[1], proofs[0].Siblings[1]}
	assert.False(t, VerifyMerkleProof(forged, root, 4))
}

func TestVerifyMerkleProofRejectsWrongDepth(t *testing.T) {
	leaves := leafSet(5)
	root, proofs := BuildMerkleTree(leaves)

	short := proofs[1]
	short.Siblings = short.Siblings[:len(short.Siblings)-1]
	assert.False(t, VerifyMerkleProof(short, root, 5))

	long := proofs[1]
	long.Siblings = append(append([]string(nil), long.Siblings...), root)
	assert.False(t, VerifyMerkleProof(long, root, 5))
}

func TestVerifyMerkleProofRejectsForeignSiblingForOddNode(t *testing.T) {
	leaves := leafSet(3)
	root, proofs := BuildMerkleTree(leaves)

	swapped := proofs[2]
	swapped.Siblings = []string{hashLeaf(leaves[1]), swapped.Siblings[1]}
	assert.False(t, VerifyMerkleProof(swapped, root, 3))
}

func TestMerkleRootChangesWithOrder(t *testing.T) {
	leaves := leafSet(4)
	swapped := []string{leaves[1], leaves[0], leaves[2], leaves[3]}
	assert.NotEqual(t, MerkleRoot(leaves), MerkleRoot(swapped))
}
