package token

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"tokenwallet/internal/hash"
)

// Authenticator is the sender's signature over a transaction hash, together
// with the public key that produced it and the hash of the consumed state.
type Authenticator struct {
	_         struct{}     `cbor:",toarray"`
	PublicKey []byte       `json:"publicKey"`
	Signature []byte       `json:"signature"`
	StateHash hash.Imprint `json:"stateHash"`
}

// Verify checks the signature over the given transaction hash.
func (a *Authenticator) Verify(txHash hash.Imprint) bool {
	if len(a.PublicKey) != ed25519.PublicKeySize {
		return false
	}

	digest, err := txHash.Bytes()
	if err != nil {
		return false
	}

	return ed25519.Verify(a.PublicKey, digest, a.Signature)
}

// bytes returns the canonical CBOR encoding of the authenticator.
func (a *Authenticator) bytes() []byte {
	b, _ := cbor.Marshal(a)
	return b
}

// Equal reports whether two authenticators are byte-identical in their
// canonical encoding.
func (a *Authenticator) Equal(other *Authenticator) bool {
	return bytes.Equal(a.bytes(), other.bytes())
}

// Commitment is a signed intent to transition a token state, submitted to the
// aggregator before an inclusion proof exists. Immutable once created.
type Commitment struct {
	_               struct{}      `cbor:",toarray"`
	RequestID       hash.Imprint  `json:"requestId"`
	TransactionHash hash.Imprint  `json:"transactionHash"`
	Authenticator   Authenticator `json:"authenticator"`
}

// DeriveRequestID computes the request identifier for an owner key and the
// hash of the state it would consume.
func DeriveRequestID(publicKey []byte, stateHash hash.Imprint) (hash.Imprint, error) {
	digest, err := stateHash.Bytes()
	if err != nil {
		return "", fmt.Errorf("state hash:\n%w", err)
	}

	return hash.Keyed("tokenwallet-request-id", publicKey, digest), nil
}

// NewCommitment signs a transaction hash with the owner key and builds the
// commitment consuming the given source state.
func NewCommitment(key ed25519.PrivateKey, sourceStateHash, txHash hash.Imprint) (*Commitment, error) {
	pub := key.Public().(ed25519.PublicKey)

	reqID, err := DeriveRequestID(pub, sourceStateHash)
	if err != nil {
		return nil, err
	}

	digest, err := txHash.Bytes()
	if err != nil {
		return nil, fmt.Errorf("tx hash:\n%w", err)
	}

	return &Commitment{
		RequestID:       reqID,
		TransactionHash: txHash,
		Authenticator: Authenticator{
			PublicKey: pub,
			Signature: ed25519.Sign(key, digest),
			StateHash: sourceStateHash,
		},
	}, nil
}

// EncodeCommitment serializes a commitment to its canonical CBOR form.
// This is the verbatim payload a recipient forwards for offline transfers.
func EncodeCommitment(c *Commitment) ([]byte, error) {
	data, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode commitment:\n%w", err)
	}

	return data, nil
}

// DecodeCommitment deserializes a commitment from its CBOR form.
func DecodeCommitment(data []byte) (*Commitment, error) {
	var c Commitment
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode commitment:\n%w", err)
	}

	if !c.RequestID.Valid() || !c.TransactionHash.Valid() {
		return nil, fmt.Errorf("commitment has malformed hashes")
	}

	return &c, nil
}
