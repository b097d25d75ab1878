package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/hash"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
	"tokenwallet/internal/txf"
)

// SendOptions configures a transfer.
type SendOptions struct {
	// Secret is the sender's wallet secret.
	Secret []byte

	// Nonce is required when the sender holds the token under a masked predicate.
	Nonce []byte

	// Recipient is either a full address ("addr1...") the recipient computed
	// themselves, or a hex recipient public key from which an unmasked
	// address is derived with a fresh salt.
	Recipient string

	// RecipientDataHash, when set, commits the recipient to supplying state
	// data with exactly this imprint.
	RecipientDataHash hash.Imprint

	// Message is an optional note carried in the transfer data.
	Message string

	// SubmitNow submits the commitment and waits for its proof; otherwise an
	// offline package is embedded for the recipient to submit.
	SubmitNow bool

	// Policy bounds the proof poll when SubmitNow is set.
	Policy aggregator.RetryPolicy
}

// Send appends a transfer to the token and returns the updated envelope. With
// SubmitNow the commitment is submitted and proven; otherwise the pre-signed
// commitment travels in the offline package and the file itself becomes the
// transfer medium.
func Send(ctx context.Context, env *txf.Envelope, poller *aggregator.Poller, opts SendOptions) (*txf.Envelope, error) {
	if env.State == nil {
		return nil, fmt.Errorf("token is in transit; it has no spendable state")
	}

	state := env.State

	key := predicate.DeriveKey(opts.Secret, opts.Nonce)
	pub := key.Public().(ed25519.PublicKey)

	if !bytes.Equal(pub, state.Predicate.PublicKey()) {
		return nil, fmt.Errorf("secret does not control this token's current state")
	}

	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	recipient, err := resolveRecipient(opts.Recipient, salt)
	if err != nil {
		return nil, err
	}

	data := token.TransactionData{
		SourceState:       *state,
		Recipient:         recipient,
		Salt:              salt,
		RecipientDataHash: opts.RecipientDataHash,
		Message:           opts.Message,
	}

	txHash, err := data.Hash()
	if err != nil {
		return nil, err
	}

	commitment, err := token.NewCommitment(key, state.Hash(), txHash)
	if err != nil {
		return nil, err
	}

	out := *env
	out.State = nil
	out.Status = txf.StatusTransferred
	out.Transactions = append(append([]token.Transaction{}, env.Transactions...), token.Transaction{Data: data})
	newTx := &out.Transactions[len(out.Transactions)-1]

	if opts.SubmitNow {
		logger.Info("submitting transfer commitment", "requestId", commitment.RequestID, "recipient", recipient)

		proof, err := poller.SubmitAndWait(ctx, commitment, opts.Policy)
		if err != nil {
			return nil, err
		}

		newTx.InclusionProof = proof
		newTx.Commitment = commitment

		return &out, nil
	}

	blob, err := txf.EncodeCommitmentBlob(commitment)
	if err != nil {
		return nil, err
	}

	out.OfflineTransfer = &txf.OfflineTransfer{
		SenderAddress:    state.Predicate.Address(),
		RecipientAddress: recipient,
		Salt:             salt,
		Commitment:       blob,
		Message:          opts.Message,
	}

	return &out, nil
}

// resolveRecipient turns the --recipient argument into an address: a full
// address passes through, a hex public key yields an unmasked address bound
// to the fresh transfer salt.
func resolveRecipient(arg string, salt []byte) (predicate.Address, error) {
	if strings.HasPrefix(arg, predicate.AddressPrefix) {
		addr := predicate.Address(arg)
		if !addr.Valid() {
			return "", fmt.Errorf("malformed recipient address: %q", arg)
		}

		return addr, nil
	}

	pub, err := hex.DecodeString(arg)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("recipient must be an address or a %d-byte hex public key", ed25519.PublicKeySize)
	}

	return predicate.Unmasked{Key: pub, Salt: salt}.Address(), nil
}

// joinLines formats validation findings one per line for error messages.
func joinLines(lines []string) string {
	return "  " + strings.Join(lines, "\n  ")
}
