package poc

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// Ciphersuite domain separation tag for the basic min-pk signature scheme:
// public keys on G1 (48 bytes compressed), signatures on G2 (96 bytes).
const dstG2 = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"

const (
	// PublicKeySize is the compressed G1 public key size.
	PublicKeySize = 48
	// SignatureSize is the compressed G2 signature size.
	SignatureSize = 96
)

func init() {
	if err := bls.Init(bls.BLS12_381); err != nil {
		panic(fmt.Errorf("bls init: %w", err))
	}
	if err := bls.SetETHmode(bls.EthModeDraft07); err != nil {
		panic(fmt.Errorf("bls eth mode: %w", err))
	}
	if err := bls.SetDstG2(dstG2); err != nil {
		panic(fmt.Errorf("bls dst: %w", err))
	}
}

var (
	// ErrNoSignatures is returned when aggregating an empty set.
	ErrNoSignatures = errors.New("no signatures to aggregate")
	// ErrMessageMismatch is returned when aggregated signatures do not all
	// cover the same message.
	ErrMessageMismatch = errors.New("signed messages differ")
	// ErrInvalidAggregate is returned when the aggregated signature fails
	// verification under the aggregated public key.
	ErrInvalidAggregate = errors.New("invalid aggregate")
)

// ValidatorSignature is a single validator's signature with its public key,
// both in compressed form.
type ValidatorSignature struct {
	Signature []byte `json:"signature"`
	Validator []byte `json:"validator"`
}

// SignedByValidator is a message with one validator signature.
type SignedByValidator struct {
	Msg       []byte             `json:"msg"`
	Signature ValidatorSignature `json:"signature"`
}

// SignedAggregate is a message with an aggregated signature and the ordered
// validator set that produced it. Duplicates are preserved; the aggregate
// public key is the BLS aggregation of Validators in order.
type SignedAggregate struct {
	Msg        []byte   `json:"msg"`
	Signature  []byte   `json:"signature"`
	Validators [][]byte `json:"validators"`
}

// Signer wraps a validator secret key. Signing is safe for concurrent use
// once the signer is constructed.
type Signer struct {
	sk  bls.SecretKey
	pub []byte
}

// NewSigner derives a deterministic signer from a validator name. The key
// material is the SHA-256 of the name, so equal names yield equal keys.
func NewSigner(name string) (*Signer, error) {
	if name == "" {
		return nil, errors.New("validator name is empty")
	}
	seed := sha256.Sum256([]byte(name))
	var sk bls.SecretKey
	if err := sk.SetLittleEndianMod(seed[:]); err != nil {
		return nil, fmt.Errorf("derive secret key: %w", err)
	}
	return &Signer{sk: sk, pub: sk.GetPublicKey().Serialize()}, nil
}

// NewRandomSigner generates a signer with a fresh random key.
func NewRandomSigner() *Signer {
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return &Signer{sk: sk, pub: sk.GetPublicKey().Serialize()}
}

// PublicKey returns the compressed public key.
func (s *Signer) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}

// Sign signs msg and returns the signed envelope.
func (s *Signer) Sign(msg []byte) SignedByValidator {
	sig := s.sk.SignByte(msg)
	return SignedByValidator{
		Msg: append([]byte(nil), msg...),
		Signature: ValidatorSignature{
			Signature: sig.Serialize(),
			Validator: s.PublicKey(),
		},
	}
}

// SignAggregate signs msg and aggregates the result with the given
// co-signatures.
func (s *Signer) SignAggregate(msg []byte, signed []SignedByValidator) (SignedAggregate, error) {
	all := make([]SignedByValidator, 0, len(signed)+1)
	all = append(all, signed...)
	all = append(all, s.Sign(msg))
	return Aggregate(msg, all)
}

// Verify checks a single validator signature.
func Verify(signed SignedByValidator) (bool, error) {
	var pk bls.PublicKey
	if err := pk.Deserialize(signed.Signature.Validator); err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	var sig bls.Sign
	if err := sig.Deserialize(signed.Signature.Signature); err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	return sig.VerifyByte(&pk, signed.Msg), nil
}

// Aggregate merges the signatures over msg into a SignedAggregate. The
// validator list keeps the input order, duplicates included. A one-element
// aggregate is the single signature unchanged. Signatures over a different
// message fail with ErrMessageMismatch; an aggregate that does not verify
// under the aggregated public key fails with ErrInvalidAggregate.
func Aggregate(msg []byte, signed []SignedByValidator) (SignedAggregate, error) {
	switch len(signed) {
	case 0:
		return SignedAggregate{}, ErrNoSignatures
	case 1:
		if !bytes.Equal(signed[0].Msg, msg) {
			return SignedAggregate{}, ErrMessageMismatch
		}
		return SignedAggregate{
			Msg:        append([]byte(nil), msg...),
			Signature:  signed[0].Signature.Signature,
			Validators: [][]byte{signed[0].Signature.Validator},
		}, nil
	}

	var agg bls.Sign
	validators := make([][]byte, 0, len(signed))
	for i, s := range signed {
		if !bytes.Equal(s.Msg, msg) {
			return SignedAggregate{}, ErrMessageMismatch
		}
		var sig bls.Sign
		if err := sig.Deserialize(s.Signature.Signature); err != nil {
			return SignedAggregate{}, fmt.Errorf("signature %d: %w", i, err)
		}
		if i == 0 {
			agg = sig
		} else {
			agg.Add(&sig)
		}
		validators = append(validators, s.Signature.Validator)
	}

	out := SignedAggregate{
		Msg:        append([]byte(nil), msg...),
		Signature:  agg.Serialize(),
		Validators: validators,
	}
	ok, err := VerifyAggregate(out)
	if err != nil {
		return SignedAggregate{}, err
	}
	if !ok {
		return SignedAggregate{}, ErrInvalidAggregate
	}
	return out, nil
}

// AggregatePublicKey aggregates compressed public keys in order, duplicates
// preserved.
func AggregatePublicKey(validators [][]byte) ([]byte, error) {
	if len(validators) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}
	var agg bls.PublicKey
	for i, raw := range validators {
		var pk bls.PublicKey
		if err := pk.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
		if i == 0 {
			agg = pk
		} else {
			agg.Add(&pk)
		}
	}
	return agg.Serialize(), nil
}

// VerifyAggregate checks the aggregated signature against the aggregate of
// the carried validator keys for the common message.
func VerifyAggregate(sa SignedAggregate) (bool, error) {
	pub, err := AggregatePublicKey(sa.Validators)
	if err != nil {
		return false, err
	}
	var pk bls.PublicKey
	if err := pk.Deserialize(pub); err != nil {
		return false, fmt.Errorf("parse aggregate public key: %w", err)
	}
	var sig bls.Sign
	if err := sig.Deserialize(sa.Signature); err != nil {
		return false, fmt.Errorf("parse aggregate signature: %w", err)
	}
	return sig.VerifyByte(&pk, sa.Msg), nil
}
