package ownership

import (
	"context"
	"errors"
	"fmt"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/hash"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/token"
	"tokenwallet/internal/txf"
)

// Scenario classifies a token's current ownership situation.
type Scenario string

const (
	// ScenarioCurrent means the state is unspent and no transfer is pending.
	ScenarioCurrent Scenario = "current"

	// ScenarioOutdated means the state was spent on-chain with no local
	// record: the token was spent elsewhere.
	ScenarioOutdated Scenario = "outdated"

	// ScenarioPending means the state is unspent and an offline package exists.
	ScenarioPending Scenario = "pending"

	// ScenarioConfirmed means the state was spent on-chain and the spend is
	// recorded locally.
	ScenarioConfirmed Scenario = "confirmed"

	// ScenarioError means the network or crypto layer failed; the on-chain
	// state is unknown.
	ScenarioError Scenario = "error"
)

// Resolution is the outcome of an ownership query. OnChainSpent is nil when
// the query failed.
type Resolution struct {
	Scenario     Scenario
	OnChainSpent *bool
	Detail       string
}

// Resolve classifies the envelope's current state. It derives the request
// identifier from the owner's predicate and queries the aggregator's proof
// endpoint directly, the same query the poller makes, so status answers stay
// symmetric with polling.
func Resolve(ctx context.Context, env *txf.Envelope, svc aggregator.Service) Resolution {
	t := env.Token()

	state, err := t.CurrentState()
	if err != nil {
		return Resolution{Scenario: ScenarioError, Detail: err.Error()}
	}

	stateHash := state.Hash()

	requestID, err := token.DeriveRequestID(state.Predicate.PublicKey(), stateHash)
	if err != nil {
		return Resolution{Scenario: ScenarioError, Detail: err.Error()}
	}

	spent, err := querySpent(ctx, svc, requestID)
	if err != nil {
		logger.Warn("ownership query failed", "requestId", requestID, "err", err)
		return Resolution{Scenario: ScenarioError, Detail: err.Error()}
	}

	hasPackage := env.OfflineTransfer != nil
	hasLocalRecord := recordsSpend(env, stateHash)

	scenario := classify(spent, hasPackage, hasLocalRecord)

	return Resolution{
		Scenario:     scenario,
		OnChainSpent: &spent,
		Detail:       fmt.Sprintf("requestId=%s spent=%t package=%t localRecord=%t", requestID, spent, hasPackage, hasLocalRecord),
	}
}

// querySpent asks the aggregator whether the owner state is consumed.
// Not-found and PATH_NOT_INCLUDED both mean unspent; a proof with status OK
// means the state is in the tree, i.e. spent.
func querySpent(ctx context.Context, svc aggregator.Service, requestID hash.Imprint) (bool, error) {
	resp, err := svc.GetInclusionProof(ctx, requestID)
	if errors.Is(err, aggregator.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch resp.Status {
	case aggregator.StatusOK:
		return true, nil
	case aggregator.StatusPathNotIncluded:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected proof status %q for %s", resp.Status, requestID)
	}
}

// recordsSpend reports whether a local transaction consumes the given state.
func recordsSpend(env *txf.Envelope, stateHash hash.Imprint) bool {
	for i := range env.Transactions {
		if env.Transactions[i].Data.SourceState.Hash().Equal(stateHash) {
			return true
		}
	}

	return false
}

// classify applies the ordered scenario rules.
func classify(spent, hasPackage, hasLocalRecord bool) Scenario {
	switch {
	case !spent && !hasPackage:
		return ScenarioCurrent
	case spent && !hasLocalRecord:
		return ScenarioOutdated
	case !spent && hasPackage:
		return ScenarioPending
	default:
		return ScenarioConfirmed
	}
}
