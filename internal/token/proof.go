package token

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"tokenwallet/internal/hash"
)

// PathStep is one level of a Merkle tree path. Right means the sibling sits
// on the right of the running hash.
type PathStep struct {
	Sibling hash.Imprint `json:"sibling"`
	Right   bool         `json:"right"`
}

// MerkleTreePath is the aggregator's path from a request leaf to the
// certified tree root.
type MerkleTreePath struct {
	Root  hash.Imprint `json:"root"`
	Steps []PathStep   `json:"steps"`
}

// UnicityCertificate is the consensus certificate over a tree root: a BLS
// aggregate signature by the trust-base validators named in the signer bitmap.
type UnicityCertificate struct {
	RootHash     hash.Imprint `json:"rootHash"`
	Epoch        uint64       `json:"epoch"`
	SignerBitmap []byte       `json:"signerBitmap"`
	Signature    []byte       `json:"signature"`
}

// SigningPayload returns the message the trust-base validators sign for a
// certificate: BLAKE3("tokenwallet-cert" || epoch_le || root digest).
func (c *UnicityCertificate) SigningPayload() ([]byte, error) {
	digest, err := c.RootHash.Bytes()
	if err != nil {
		return nil, fmt.Errorf("certificate root hash:\n%w", err)
	}

	var epoch [8]byte
	binary.LittleEndian.PutUint64(epoch[:], c.Epoch)

	h := blake3.New()
	h.Write([]byte("tokenwallet-cert"))
	h.Write(epoch[:])
	h.Write(digest)

	var msg [32]byte
	h.Sum(msg[:0])

	return msg[:], nil
}

// InclusionProof is the aggregator's answer for a request identifier. A nil
// authenticator or transaction hash means the state is not (yet) consumed.
type InclusionProof struct {
	MerkleTreePath     *MerkleTreePath     `json:"merkleTreePath"`
	Authenticator      *Authenticator      `json:"authenticator"`
	TransactionHash    *hash.Imprint       `json:"transactionHash"`
	UnicityCertificate *UnicityCertificate `json:"unicityCertificate"`
}

// ProofState is the completeness of an inclusion proof: Incomplete or Complete.
type ProofState interface {
	isProofState()
}

// Incomplete means the request is not (yet) included: the state is unspent or
// the proof has not materialized.
type Incomplete struct{}

func (Incomplete) isProofState() {}

// Complete means the request is included: both authenticator and transaction
// hash are present.
type Complete struct {
	Authenticator   Authenticator
	TransactionHash hash.Imprint
}

func (Complete) isProofState() {}

// State classifies the proof's completeness.
func (p *InclusionProof) State() ProofState {
	if p == nil || p.Authenticator == nil || p.TransactionHash == nil {
		return Incomplete{}
	}

	return Complete{Authenticator: *p.Authenticator, TransactionHash: *p.TransactionHash}
}

// LeafValue computes the leaf digest the aggregator stores for an included
// request: BLAKE3 over the request ID, the authenticator, and the tx hash.
func LeafValue(requestID hash.Imprint, auth *Authenticator, txHash hash.Imprint) ([]byte, error) {
	reqDigest, err := requestID.Bytes()
	if err != nil {
		return nil, fmt.Errorf("request id:\n%w", err)
	}

	txDigest, err := txHash.Bytes()
	if err != nil {
		return nil, fmt.Errorf("tx hash:\n%w", err)
	}

	h := blake3.New()
	h.Write([]byte("tokenwallet-leaf"))
	h.Write(reqDigest)
	h.Write(auth.bytes())
	h.Write(txDigest)

	var leaf [32]byte
	h.Sum(leaf[:0])

	return leaf[:], nil
}

// VerifyPath recomputes the root from a leaf digest along the path and
// compares it against the path's recorded root.
func (m *MerkleTreePath) VerifyPath(leaf []byte) error {
	current := make([]byte, len(leaf))
	copy(current, leaf)

	for i, step := range m.Steps {
		sibling, err := step.Sibling.Bytes()
		if err != nil {
			return fmt.Errorf("path step %d:\n%w", i, err)
		}

		current = hashPair(current, sibling, step.Right)
	}

	if !m.Root.EqualBytes(current) {
		return fmt.Errorf("merkle path root mismatch: expected %s, got %x", m.Root, current)
	}

	return nil
}

// hashPair hashes two nodes in path order.
func hashPair(current, sibling []byte, siblingRight bool) []byte {
	h := blake3.New()
	h.Write([]byte("tokenwallet-node"))

	if siblingRight {
		h.Write(current)
		h.Write(sibling)
	} else {
		h.Write(sibling)
		h.Write(current)
	}

	var out [32]byte
	h.Sum(out[:0])

	return out[:]
}
