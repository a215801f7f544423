package poc

import "fmt"

// ValidatorSet is the node's signing set. Production deployments run one
// validator per node; the mock set below keeps a fixed three-key quorum for
// single-node and test configurations.
type ValidatorSet struct {
	signers []*Signer
}

// NewValidatorSet builds a set from validator names, deriving one
// deterministic key per name.
func NewValidatorSet(names []string) (*ValidatorSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("validator set is empty")
	}
	signers := make([]*Signer, 0, len(names))
	for _, name := range names {
		s, err := NewSigner(name)
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", name, err)
		}
		signers = append(signers, s)
	}
	return &ValidatorSet{signers: signers}, nil
}

// NewMockValidatorSet returns the fixed three-key reference set.
func NewMockValidatorSet() *ValidatorSet {
	set, err := NewValidatorSet([]string{"Alice", "Bob", "Charlie"})
	if err != nil {
		panic(err)
	}
	return set
}

// Sign signs msg with the first validator.
func (v *ValidatorSet) Sign(msg []byte) SignedByValidator {
	return v.signers[0].Sign(msg)
}

// SignAggregate has every validator sign msg and aggregates the results.
func (v *ValidatorSet) SignAggregate(msg []byte) (SignedAggregate, error) {
	signed := make([]SignedByValidator, 0, len(v.signers))
	for _, s := range v.signers {
		signed = append(signed, s.Sign(msg))
	}
	return Aggregate(msg, signed)
}

// AggregatePublicKey returns the aggregate of the set's public keys.
func (v *ValidatorSet) AggregatePublicKey() ([]byte, error) {
	keys := make([][]byte, 0, len(v.signers))
	for _, s := range v.signers {
		keys = append(keys, s.PublicKey())
	}
	return AggregatePublicKey(keys)
}

// GenerateAggregate computes the proof root over pairs and signs it with the
// whole set.
func (v *ValidatorSet) GenerateAggregate(pairs []Pair) (SignedAggregate, error) {
	root := Root(pairs)
	return v.SignAggregate(root[:])
}
