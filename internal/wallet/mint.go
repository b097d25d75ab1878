package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
	"tokenwallet/internal/trustbase"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/verify"
)

// saltSize is the size of transfer and mint salts in bytes.
const saltSize = 32

// MintOptions configures a mint operation.
type MintOptions struct {
	TokenType string                 // TokenType is the token type identifier
	Data      []byte                 // Data is the initial state data, optional
	Secret    []byte                 // Secret is the minter's wallet secret
	TrustBase *trustbase.TrustBase   // TrustBase validates the mint proof, nil skips
	Policy    aggregator.RetryPolicy // Policy bounds the proof poll
}

// Mint creates a new token owned by the minter's unmasked predicate, submits
// the mint commitment, waits for its inclusion proof, and returns the TXF
// envelope ready to persist.
func Mint(ctx context.Context, poller *aggregator.Poller, opts MintOptions) (*txf.Envelope, error) {
	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	key := predicate.DeriveKey(opts.Secret, nil)
	pred := predicate.Unmasked{Key: key.Public().(ed25519.PublicKey), Salt: salt}

	genesisData := token.GenesisData{
		TokenType: opts.TokenType,
		Recipient: pred.Address(),
		Salt:      salt,
		Data:      opts.Data,
	}

	genesisHash, err := genesisData.Hash()
	if err != nil {
		return nil, err
	}

	genesisData.TokenID = token.DeriveTokenID(genesisHash)

	mintState, err := token.MintStateHash(genesisData.TokenID)
	if err != nil {
		return nil, err
	}

	commitment, err := token.NewCommitment(key, mintState, genesisHash)
	if err != nil {
		return nil, err
	}

	logger.Info("submitting mint commitment", "tokenId", genesisData.TokenID, "requestId", commitment.RequestID)

	proof, err := poller.SubmitAndWait(ctx, commitment, opts.Policy)
	if err != nil {
		return nil, err
	}

	t := &token.Token{
		ID:      genesisData.TokenID,
		Type:    opts.TokenType,
		State:   &token.State{Predicate: pred, Data: opts.Data},
		Genesis: token.Genesis{Data: genesisData, InclusionProof: proof},
	}

	if opts.TrustBase != nil {
		if result := verify.ValidateToken(t, opts.TrustBase, false); !result.Valid() {
			return nil, fmt.Errorf("mint proof rejected:\n%s", joinLines(result.Errors))
		}
	}

	env := txf.FromToken(t)

	integrity, err := txf.GenesisIntegrityHash(genesisData)
	if err != nil {
		return nil, err
	}

	env.Integrity = &txf.Integrity{GenesisDataJSONHash: integrity}

	return env, nil
}

// randomSalt generates a fresh transfer salt.
func randomSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt:\n%w", err)
	}

	return salt, nil
}
