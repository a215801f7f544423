// Package poc implements proof-of-computation attestations: a BLS12-381
// min-pk aggregated signature over an ordered-trie root derived from
// (input, output) pairs.
package poc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// PoC is the attestation attached to externally observable results.
type PoC struct {
	AggregateSignature []byte
	AggregatePublicKey []byte
	Root               [32]byte
}

type pocWire struct {
	AggregateSignature string `json:"aggregate_signature"`
	AggregatePublicKey string `json:"aggregate_public_key"`
	Root               string `json:"root"`
}

// MarshalJSON renders the wire form: the signature as bare hex, the public
// key and root 0x-prefixed.
func (p PoC) MarshalJSON() ([]byte, error) {
	return json.Marshal(pocWire{
		AggregateSignature: hex.EncodeToString(p.AggregateSignature),
		AggregatePublicKey: "0x" + hex.EncodeToString(p.AggregatePublicKey),
		Root:               "0x" + hex.EncodeToString(p.Root[:]),
	})
}

// UnmarshalJSON accepts hex fields with or without a 0x prefix.
func (p *PoC) UnmarshalJSON(data []byte) error {
	var wire pocWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(wire.AggregateSignature, "0x"))
	if err != nil {
		return fmt.Errorf("aggregate_signature: %w", err)
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(wire.AggregatePublicKey, "0x"))
	if err != nil {
		return fmt.Errorf("aggregate_public_key: %w", err)
	}
	root, err := hex.DecodeString(strings.TrimPrefix(wire.Root, "0x"))
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if len(root) != 32 {
		return fmt.Errorf("root: expected 32 bytes, got %d", len(root))
	}
	p.AggregateSignature = sig
	p.AggregatePublicKey = pub
	copy(p.Root[:], root)
	return nil
}

// FromAggregate derives the PoC from a signed aggregate whose message is the
// 32-byte proof root.
func FromAggregate(sa SignedAggregate) (PoC, error) {
	if len(sa.Msg) != 32 {
		return PoC{}, fmt.Errorf("aggregate message is %d bytes, want 32", len(sa.Msg))
	}
	pub, err := AggregatePublicKey(sa.Validators)
	if err != nil {
		return PoC{}, err
	}
	p := PoC{
		AggregateSignature: sa.Signature,
		AggregatePublicKey: pub,
	}
	copy(p.Root[:], sa.Msg)
	return p, nil
}

// Verify checks the aggregate signature over the root under the aggregate
// public key.
func (p PoC) Verify() (bool, error) {
	return VerifyAggregate(SignedAggregate{
		Msg:        p.Root[:],
		Signature:  p.AggregateSignature,
		Validators: [][]byte{p.AggregatePublicKey},
	})
}

func (p PoC) String() string {
	return fmt.Sprintf("aggregate_signature: %s\naggregate_public_key: 0x%s\nroot: 0x%s",
		hex.EncodeToString(p.AggregateSignature),
		hex.EncodeToString(p.AggregatePublicKey),
		hex.EncodeToString(p.Root[:]))
}
