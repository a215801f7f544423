package poc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootSingleLeaf(t *testing.T) {
	root := Root([]Pair{{Input: []byte("1"), Output: []byte("2")}})

	var expected [32]byte
	copy(expected[:], Keccak256([]byte("12")))
	assert.Equal(t, expected, root)
}

func TestRootEmpty(t *testing.T) {
	assert.Equal(t, [32]byte{}, Root(nil))
}

func TestRootTwoLeaves(t *testing.T) {
	pairs := []Pair{
		{Input: []byte("1"), Output: []byte("2")},
		{Input: []byte("3"), Output: []byte("4")},
	}
	root := Root(pairs)

	leaves := [][]byte{
		Keccak256([]byte("1"), []byte("2")),
		Keccak256([]byte("3"), []byte("4")),
	}
	assert.Equal(t, OrderedTrieRoot(leaves), root)
	assert.NotEqual(t, [32]byte{}, root)

	// Order matters.
	swapped := Root([]Pair{pairs[1], pairs[0]})
	assert.NotEqual(t, root, swapped)
}

func TestOrderedTrieRootDeterministic(t *testing.T) {
	leaves := [][]byte{
		Keccak256([]byte("a")),
		Keccak256([]byte("b")),
		Keccak256([]byte("c")),
	}
	assert.Equal(t, OrderedTrieRoot(leaves), OrderedTrieRoot(leaves))
}

func TestSignVerify(t *testing.T) {
	signer := NewRandomSigner()
	signed := signer.Sign([]byte("hello"))

	ok, err := Verify(signed)
	require.NoError(t, err)
	assert.True(t, ok)

	// Tampered message fails.
	signed.Msg = []byte("tampered")
	ok, err = Verify(signed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignerDeterministic(t *testing.T) {
	a, err := NewSigner("Alice")
	require.NoError(t, err)
	b, err := NewSigner("Alice")
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	c, err := NewSigner("Bob")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestKeyAndSignatureSizes(t *testing.T) {
	signer := NewRandomSigner()
	signed := signer.Sign([]byte("msg"))
	assert.Len(t, signer.PublicKey(), PublicKeySize)
	assert.Len(t, signed.Signature.Signature, SignatureSize)
}

func TestAggregateThreeSigners(t *testing.T) {
	msg := []byte("common message")
	s1, s2, s3 := NewRandomSigner(), NewRandomSigner(), NewRandomSigner()

	signed := []SignedByValidator{s1.Sign(msg), s2.Sign(msg), s3.Sign(msg)}
	agg, err := Aggregate(msg, signed)
	require.NoError(t, err)

	ok, err := VerifyAggregate(agg)
	require.NoError(t, err)
	assert.True(t, ok)

	// Validator order is preserved.
	require.Len(t, agg.Validators, 3)
	assert.Equal(t, s1.PublicKey(), agg.Validators[0])
	assert.Equal(t, s2.PublicKey(), agg.Validators[1])
	assert.Equal(t, s3.PublicKey(), agg.Validators[2])

	expectedPub, err := AggregatePublicKey([][]byte{s1.PublicKey(), s2.PublicKey(), s3.PublicKey()})
	require.NoError(t, err)
	actualPub, err := AggregatePublicKey(agg.Validators)
	require.NoError(t, err)
	assert.Equal(t, expectedPub, actualPub)
}

func TestAggregateSingleIsPassthrough(t *testing.T) {
	msg := []byte("solo")
	signer := NewRandomSigner()
	signed := signer.Sign(msg)

	agg, err := Aggregate(msg, []SignedByValidator{signed})
	require.NoError(t, err)
	assert.Equal(t, signed.Signature.Signature, agg.Signature)
	assert.Equal(t, [][]byte{signer.PublicKey()}, agg.Validators)
}

func TestAggregateEmptyFails(t *testing.T) {
	_, err := Aggregate([]byte("msg"), nil)
	assert.ErrorIs(t, err, ErrNoSignatures)
}

func TestAggregateMessageMismatch(t *testing.T) {
	s1, s2 := NewRandomSigner(), NewRandomSigner()
	signed := []SignedByValidator{s1.Sign([]byte("one")), s2.Sign([]byte("two"))}

	_, err := Aggregate([]byte("one"), signed)
	assert.ErrorIs(t, err, ErrMessageMismatch)
}

func TestAggregateDuplicatesPreserved(t *testing.T) {
	msg := []byte("dup")
	signer := NewRandomSigner()
	signed := []SignedByValidator{signer.Sign(msg), signer.Sign(msg)}

	agg, err := Aggregate(msg, signed)
	require.NoError(t, err)
	require.Len(t, agg.Validators, 2)
	assert.Equal(t, agg.Validators[0], agg.Validators[1])

	ok, err := VerifyAggregate(agg)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPoCFromAggregateAndVerify(t *testing.T) {
	set := NewMockValidatorSet()
	pairs := []Pair{{Input: []byte("1"), Output: []byte("2")}}

	agg, err := set.GenerateAggregate(pairs)
	require.NoError(t, err)

	ok, err := VerifyAggregate(agg)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := FromAggregate(agg)
	require.NoError(t, err)
	assert.Equal(t, Root(pairs), p.Root)

	setKey, err := set.AggregatePublicKey()
	require.NoError(t, err)
	assert.Equal(t, setKey, p.AggregatePublicKey)

	ok, err = p.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPoCJSONRoundTrip(t *testing.T) {
	set := NewMockValidatorSet()
	agg, err := set.GenerateAggregate([]Pair{{Input: []byte("in"), Output: []byte("out")}})
	require.NoError(t, err)
	p, err := FromAggregate(agg)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var wire map[string]string
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.NotContains(t, wire["aggregate_signature"], "0x")
	assert.Contains(t, wire["aggregate_public_key"], "0x")
	assert.Contains(t, wire["root"], "0x")
	assert.Len(t, wire["root"], 2+64)

	var decoded PoC
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, p, decoded)

	ok, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockValidatorSetStable(t *testing.T) {
	a := NewMockValidatorSet()
	b := NewMockValidatorSet()

	keyA, err := a.AggregatePublicKey()
	require.NoError(t, err)
	keyB, err := b.AggregatePublicKey()
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)
}
