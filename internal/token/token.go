package token

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"tokenwallet/internal/hash"
	"tokenwallet/internal/predicate"
)

// Token is a ledger token: a genesis (mint) transaction plus an ordered list
// of transfer transactions, each anchored by an inclusion proof. State is nil
// while the token is in transit between owners.
type Token struct {
	ID           hash.Imprint  `json:"id"`           // ID is derived from the genesis data hash
	Type         string        `json:"type"`         // Type is the token type identifier
	State        *State        `json:"state"`        // State is the current owner state, nil in transit
	Genesis      Genesis       `json:"genesis"`      // Genesis is the mint transaction
	Transactions []Transaction `json:"transactions"` // Transactions are the transfers after genesis
	Nametags     []string      `json:"nametags"`     // Nametags are optional human-readable labels
}

// State is a token ownership state: a spending predicate plus opaque data.
type State struct {
	Predicate predicate.Predicate
	Data      []byte
}

// stateWire is the JSON form of State.
type stateWire struct {
	Predicate json.RawMessage `json:"predicate"`
	Data      []byte          `json:"data,omitempty"`
}

// MarshalJSON encodes the state with its tagged predicate.
func (s State) MarshalJSON() ([]byte, error) {
	predJSON, err := predicate.Marshal(s.Predicate)
	if err != nil {
		return nil, err
	}

	return json.Marshal(stateWire{Predicate: predJSON, Data: s.Data})
}

// UnmarshalJSON decodes the state and its tagged predicate.
func (s *State) UnmarshalJSON(data []byte) error {
	var w stateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	pred, err := predicate.Unmarshal(w.Predicate)
	if err != nil {
		return err
	}

	s.Predicate = pred
	s.Data = w.Data

	return nil
}

// Hash computes the state hash imprint over the predicate fingerprint and data.
func (s State) Hash() hash.Imprint {
	fp, _ := predicate.Fingerprint(s.Predicate).Bytes()

	return hash.Keyed("tokenwallet-state", fp, s.Data)
}

// Genesis is the mint transaction of a token.
type Genesis struct {
	Data           GenesisData     `json:"data"`
	InclusionProof *InclusionProof `json:"inclusionProof"`
}

// GenesisData is the payload of a mint transaction.
type GenesisData struct {
	TokenID   hash.Imprint      `json:"tokenId"`
	TokenType string            `json:"tokenType"`
	Recipient predicate.Address `json:"recipient"`
	Salt      []byte            `json:"salt"`
	Data      []byte            `json:"data,omitempty"`
}

// genesisHashPayload is the canonical CBOR form hashed for the genesis hash.
type genesisHashPayload struct {
	_         struct{} `cbor:",toarray"`
	TokenType string
	Recipient string
	Salt      []byte
	Data      []byte
}

// Hash computes the genesis data hash imprint.
func (g GenesisData) Hash() (hash.Imprint, error) {
	payload, err := cbor.Marshal(genesisHashPayload{
		TokenType: g.TokenType,
		Recipient: string(g.Recipient),
		Salt:      g.Salt,
		Data:      g.Data,
	})
	if err != nil {
		return "", fmt.Errorf("encode genesis payload:\n%w", err)
	}

	return hash.Keyed("tokenwallet-genesis", payload), nil
}

// DeriveTokenID computes the token identifier from the genesis data hash.
func DeriveTokenID(genesisHash hash.Imprint) hash.Imprint {
	digest, _ := genesisHash.Bytes()

	return hash.Keyed("tokenwallet-token-id", digest)
}

// DataHash computes the imprint a transfer commits to when it constrains the
// recipient's state data.
func DataHash(data []byte) hash.Imprint {
	return hash.Keyed("tokenwallet-state-data", data)
}

// MintStateHash computes the pseudo source-state hash a mint commitment
// consumes. Minting has no prior state, so the token identifier stands in.
func MintStateHash(tokenID hash.Imprint) (hash.Imprint, error) {
	digest, err := tokenID.Bytes()
	if err != nil {
		return "", fmt.Errorf("token id:\n%w", err)
	}

	return hash.Keyed("tokenwallet-mint-state", digest), nil
}

// Transaction is a transfer appended to a token's history. InclusionProof is
// nil until the transfer is proven; Commitment carries the sender's pre-signed
// submission payload for offline transfers.
type Transaction struct {
	Data           TransactionData `json:"data"`
	InclusionProof *InclusionProof `json:"inclusionProof,omitempty"`
	Commitment     *Commitment     `json:"commitment,omitempty"`
}

// TransactionData is the payload of a transfer transaction.
type TransactionData struct {
	SourceState       State             `json:"sourceState"`
	Recipient         predicate.Address `json:"recipient"`
	Salt              []byte            `json:"salt"`
	RecipientDataHash hash.Imprint      `json:"recipientDataHash,omitempty"`
	Message           string            `json:"message,omitempty"`
}

// txHashPayload is the canonical CBOR form hashed for the transaction hash.
type txHashPayload struct {
	_                 struct{} `cbor:",toarray"`
	SourceStateHash   []byte
	Recipient         string
	Salt              []byte
	RecipientDataHash []byte
	Message           string
}

// Hash computes the transaction hash imprint.
func (d TransactionData) Hash() (hash.Imprint, error) {
	srcHash, err := d.SourceState.Hash().Bytes()
	if err != nil {
		return "", fmt.Errorf("source state hash:\n%w", err)
	}

	var dataHash []byte
	if d.RecipientDataHash != "" {
		dataHash, err = d.RecipientDataHash.Bytes()
		if err != nil {
			return "", fmt.Errorf("recipient data hash:\n%w", err)
		}
	}

	payload, err := cbor.Marshal(txHashPayload{
		SourceStateHash:   srcHash,
		Recipient:         string(d.Recipient),
		Salt:              d.Salt,
		RecipientDataHash: dataHash,
		Message:           d.Message,
	})
	if err != nil {
		return "", fmt.Errorf("encode tx payload:\n%w", err)
	}

	return hash.Keyed("tokenwallet-tx", payload), nil
}

// LastTransaction returns the most recent transfer, or nil if none exist.
func (t *Token) LastTransaction() *Transaction {
	if len(t.Transactions) == 0 {
		return nil
	}

	return &t.Transactions[len(t.Transactions)-1]
}

// CurrentState returns the token's state, reconstructing it from the last
// transaction's source state when the token is in transit (state: null).
func (t *Token) CurrentState() (*State, error) {
	if t.State != nil {
		return t.State, nil
	}

	last := t.LastTransaction()
	if last == nil {
		return nil, fmt.Errorf("token %s has no state and no transactions", t.ID)
	}

	src := last.Data.SourceState

	return &src, nil
}
