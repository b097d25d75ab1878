package txf

import (
	"fmt"

	"tokenwallet/internal/token"
)

// ResolutionPath is the receive-time classification of a TXF's last transfer:
// Offline, NeedsResolution, or OnlineComplete.
type ResolutionPath interface {
	isResolutionPath()
}

// Offline means the caller requested no network interaction: the transfer is
// verified locally and persisted with status PENDING.
type Offline struct{}

func (Offline) isResolutionPath() {}

// NeedsResolution means the last transfer lacks a complete proof. Commitment
// is the payload to poll with; MustSubmit is set when the transfer carries no
// authenticator at all, so the sender's pre-signed commitment from the
// offline package has to be submitted first.
type NeedsResolution struct {
	Commitment *token.Commitment
	MustSubmit bool
}

func (NeedsResolution) isResolutionPath() {}

// OnlineComplete means the last transfer already carries a complete proof;
// only local derivation and verification remain.
type OnlineComplete struct{}

func (OnlineComplete) isResolutionPath() {}

// Classify inspects the envelope's last transfer and picks the receive path.
func Classify(env *Envelope, offlineRequested bool) (ResolutionPath, error) {
	if len(env.Transactions) == 0 {
		return nil, fmt.Errorf("token file has no transfer to receive")
	}

	if offlineRequested {
		return Offline{}, nil
	}

	last := &env.Transactions[len(env.Transactions)-1]

	if _, ok := last.InclusionProof.State().(token.Complete); ok {
		return OnlineComplete{}, nil
	}

	// Submitted but not yet proven: the transfer carries the sender's
	// commitment, so polling alone resolves it.
	if last.Commitment != nil {
		return NeedsResolution{Commitment: last.Commitment}, nil
	}

	// No authenticator anywhere on the transfer: truly unsubmitted. The
	// pre-signed commitment must be in the offline package.
	if env.OfflineTransfer == nil {
		return nil, fmt.Errorf("last transfer is unsubmitted and the file has no offline package")
	}

	commitment, err := DecodeCommitmentBlob(env.OfflineTransfer.Commitment)
	if err != nil {
		return nil, fmt.Errorf("offline package:\n%w", err)
	}

	return NeedsResolution{Commitment: commitment, MustSubmit: true}, nil
}
