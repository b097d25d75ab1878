package txf

import (
	"encoding/json"
	"fmt"
	"os"

	"tokenwallet/internal/hash"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
)

const (
	// Version is the current TXF format version.
	Version = 1

	// StatusPending marks a received transfer whose on-chain resolution is deferred.
	StatusPending = "PENDING"

	// StatusTransferred marks a sent transfer awaiting the recipient.
	StatusTransferred = "TRANSFERRED"

	// StatusConfirmed marks a received, proven transfer.
	StatusConfirmed = "CONFIRMED"
)

// OfflineTransfer is the in-flight transfer package embedded in a TXF file:
// everything a recipient needs to finish a transfer without the sender.
type OfflineTransfer struct {
	SenderAddress    predicate.Address `json:"senderAddress"`
	RecipientAddress predicate.Address `json:"recipientAddress"`
	Salt             []byte            `json:"salt"`
	Commitment       string            `json:"commitment"` // Commitment is the sender's pre-signed payload, base64(zstd(cbor))
	Message          string            `json:"message,omitempty"`
}

// Integrity carries CLI-level tamper detection, layered on top of the
// cryptographic proofs.
type Integrity struct {
	GenesisDataJSONHash hash.Imprint `json:"genesisDataJSONHash"`
}

// Envelope is the persisted TXF representation of a token plus any in-flight
// transfer metadata. It is rewritten whole by each command that mutates it.
type Envelope struct {
	Version         int                 `json:"version"`
	State           *token.State        `json:"state"`
	Genesis         token.Genesis       `json:"genesis"`
	Transactions    []token.Transaction `json:"transactions"`
	Nametags        []string            `json:"nametags"`
	OfflineTransfer *OfflineTransfer    `json:"offlineTransfer,omitempty"`
	Status          string              `json:"status,omitempty"`
	Integrity       *Integrity          `json:"_integrity,omitempty"`
}

// Token reconstructs the token model from the envelope. The token identifier
// and type come from the genesis data.
func (e *Envelope) Token() *token.Token {
	return &token.Token{
		ID:           e.Genesis.Data.TokenID,
		Type:         e.Genesis.Data.TokenType,
		State:        e.State,
		Genesis:      e.Genesis,
		Transactions: e.Transactions,
		Nametags:     e.Nametags,
	}
}

// FromToken builds an envelope around a token.
func FromToken(t *token.Token) *Envelope {
	return &Envelope{
		Version:      Version,
		State:        t.State,
		Genesis:      t.Genesis,
		Transactions: t.Transactions,
		Nametags:     t.Nametags,
	}
}

// GenesisIntegrityHash computes the integrity hash over the genesis data JSON.
// Written at mint time, re-verified at every load.
func GenesisIntegrityHash(data token.GenesisData) (hash.Imprint, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal genesis data:\n%w", err)
	}

	return hash.Keyed("tokenwallet-genesis-json", raw), nil
}

// Load reads and parses a TXF file, returning the envelope and the raw bytes
// for structural validation. The genesis integrity hash, when present, is
// verified here so post-mint tampering surfaces before any other processing.
func Load(path string) (*Envelope, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read token file:\n%w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("parse token file %s:\n%w", path, err)
	}

	if env.Integrity != nil {
		expected, err := GenesisIntegrityHash(env.Genesis.Data)
		if err != nil {
			return nil, nil, err
		}

		if !env.Integrity.GenesisDataJSONHash.Equal(expected) {
			return nil, nil, fmt.Errorf("genesis data tampered: integrity hash %s, recomputed %s",
				env.Integrity.GenesisDataJSONHash, expected)
		}
	}

	return &env, raw, nil
}

// Save writes the envelope to path, whole and last: callers only reach this
// after all validation has succeeded, so a crash mid-write leaves the prior
// version as the recoverable state.
func Save(path string, env *Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token file:\n%w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write token file %s:\n%w", path, err)
	}

	return nil
}
