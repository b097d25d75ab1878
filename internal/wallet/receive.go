package wallet

import (
	"context"
	"fmt"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/hash"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
	"tokenwallet/internal/trustbase"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/verify"
)

// ReceiveOptions configures a receive operation.
type ReceiveOptions struct {
	// Secret is the recipient's wallet secret.
	Secret []byte

	// Nonce selects a masked predicate; nil selects unmasked with the
	// transfer's salt.
	Nonce []byte

	// StateData is the recipient's new state data. It is required when the
	// transfer commits to a data hash, and forbidden when it does not.
	StateData []byte

	// Offline skips all network interaction and persists status PENDING.
	Offline bool

	// TrustBase validates the full proof chain; required unless Offline.
	TrustBase *trustbase.TrustBase

	// Policy bounds proof polling when resolution is needed.
	Policy aggregator.RetryPolicy
}

// Receive finalizes an incoming transfer: it resolves the last transfer's
// proof if needed (submitting the sender's pre-signed commitment when the
// transfer was never submitted), verifies the transfer is addressed to this
// wallet, enforces the recipient-data-hash commitment, validates the proof
// chain, and returns the envelope to persist.
func Receive(ctx context.Context, env *txf.Envelope, poller *aggregator.Poller, opts ReceiveOptions) (*txf.Envelope, error) {
	path, err := txf.Classify(env, opts.Offline)
	if err != nil {
		return nil, err
	}

	out := *env
	out.Transactions = append([]token.Transaction{}, env.Transactions...)
	last := &out.Transactions[len(out.Transactions)-1]
	data := last.Data

	switch p := path.(type) {
	case txf.OnlineComplete:
		logger.Debug("last transfer already proven")

	case txf.NeedsResolution:
		if err := resolveProof(ctx, poller, last, p, opts.Policy); err != nil {
			return nil, err
		}

	case txf.Offline:
		logger.Info("offline receive: deferring on-chain resolution")
	}

	// Admission gate: the predicate derived from the caller's secret must
	// yield exactly the declared recipient address.
	pred, _ := predicate.ForSecret(opts.Secret, opts.Nonce, data.Salt)
	if addr := pred.Address(); addr != data.Recipient {
		return nil, fmt.Errorf("transfer is not addressed to this wallet: derived %s, declared %s",
			addr, data.Recipient)
	}

	if err := checkDataCommitment(data.RecipientDataHash, opts.StateData); err != nil {
		return nil, err
	}

	newState := token.State{Predicate: pred, Data: opts.StateData}

	if opts.Offline {
		out.State = &newState
		out.Status = txf.StatusPending

		return &out, nil
	}

	if opts.TrustBase == nil {
		return nil, fmt.Errorf("online receive requires a trust base")
	}

	t := out.Token()
	t.State = &newState

	if result := verify.ValidateToken(t, opts.TrustBase, false); !result.Valid() {
		return nil, fmt.Errorf("token validation failed:\n%s", joinLines(result.Errors))
	}

	out.State = &newState
	out.Status = txf.StatusConfirmed
	out.OfflineTransfer = nil

	return &out, nil
}

// resolveProof fetches (and first submits, when needed) the last transfer's
// inclusion proof and backfills the transaction record.
func resolveProof(ctx context.Context, poller *aggregator.Poller, last *token.Transaction, p txf.NeedsResolution, policy aggregator.RetryPolicy) error {
	localHash, err := last.Data.Hash()
	if err != nil {
		return err
	}

	// The commitment must cover this exact transfer; a stale or foreign
	// package cannot be resolved against it.
	if !p.Commitment.TransactionHash.Equal(localHash) {
		return fmt.Errorf("commitment covers transaction %s, but the last transfer is %s",
			p.Commitment.TransactionHash, localHash)
	}

	var proof *token.InclusionProof

	if p.MustSubmit {
		logger.Info("submitting sender's pre-signed commitment", "requestId", p.Commitment.RequestID)
		proof, err = poller.SubmitAndWait(ctx, p.Commitment, policy)
	} else {
		logger.Info("resolving submitted transfer", "requestId", p.Commitment.RequestID)
		proof, err = poller.WaitInclusionProof(ctx, p.Commitment, policy)
	}

	if err != nil {
		return err
	}

	last.InclusionProof = proof
	last.Commitment = p.Commitment

	return nil
}

// checkDataCommitment enforces the recipient-data-hash gate: a committed hash
// requires matching state data, and an absent hash forbids state data.
func checkDataCommitment(committed hash.Imprint, stateData []byte) error {
	if committed == "" {
		if stateData != nil {
			return fmt.Errorf("transfer does not commit to state data, but %d bytes were supplied", len(stateData))
		}

		return nil
	}

	if stateData == nil {
		return fmt.Errorf("transfer commits to state data hash %s, but no state data was supplied", committed)
	}

	if got := token.DataHash(stateData); !committed.Equal(got) {
		return fmt.Errorf("state data hash mismatch: expected %s, got %s", committed, got)
	}

	return nil
}
