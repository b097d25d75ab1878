package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenwallet/internal/logger"
	"tokenwallet/internal/token"
)

const (
	// DefaultTimeout bounds a transfer's proof poll.
	DefaultTimeout = 60 * time.Second

	// DefaultInterval is the pause between aggregator queries.
	DefaultInterval = 1000 * time.Millisecond
)

// RetryPolicy bounds a poll loop: query every Interval until Timeout elapses.
type RetryPolicy struct {
	Timeout  time.Duration // Timeout is the total poll deadline
	Interval time.Duration // Interval is the pause between queries
}

// DefaultPolicy returns the transfer polling defaults.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// PollTimeoutError is returned when a poll exhausts its deadline without a
// complete proof. It carries the elapsed duration for the final message.
type PollTimeoutError struct {
	RequestID string        // RequestID is the polled request identifier
	Elapsed   time.Duration // Elapsed is the total time spent polling
}

// Error implements the error interface.
func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("no inclusion proof for %s after %s", e.RequestID, e.Elapsed.Round(time.Millisecond))
}

// Clock abstracts time for the poll loop so tests run without real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the wall-clock implementation.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poller polls the aggregator for inclusion proofs.
type Poller struct {
	svc   Service
	clock Clock
}

// NewPoller creates a poller on the wall clock.
func NewPoller(svc Service) *Poller {
	return &Poller{svc: svc, clock: realClock{}}
}

// NewPollerWithClock creates a poller with an injected clock.
func NewPollerWithClock(svc Service, clock Clock) *Poller {
	return &Poller{svc: svc, clock: clock}
}

// SubmitAndWait submits a commitment and polls until its proof is complete.
// Submission is idempotent: re-running for the same request converges on the
// already-materialized proof.
func (p *Poller) SubmitAndWait(ctx context.Context, c *token.Commitment, policy RetryPolicy) (*token.InclusionProof, error) {
	if err := p.svc.SubmitCommitment(ctx, c); err != nil {
		return nil, err
	}

	return p.WaitInclusionProof(ctx, c, policy)
}

// WaitInclusionProof polls until the commitment's proof is present and
// complete (authenticator and transaction hash both non-null), or the policy
// deadline elapses. Not-found answers continue silently; the first transition
// to an incomplete proof is logged once; other transport errors are logged
// and treated as transient. A complete proof covering a different transaction
// is a hard failure: the request id was resolved by a conflicting commitment,
// so the source state is already consumed and no amount of waiting helps.
//
// Ticks run every Interval from the start. The loop never sleeps past the
// deadline: the tick landing exactly on it is still queried, and none after.
func (p *Poller) WaitInclusionProof(ctx context.Context, c *token.Commitment, policy RetryPolicy) (*token.InclusionProof, error) {
	start := p.clock.Now()
	log := logger.With("requestId", string(c.RequestID))
	loggedIncomplete := false

	for {
		resp, err := p.svc.GetInclusionProof(ctx, c.RequestID)

		switch {
		case errors.Is(err, ErrNotFound):
			// Proof not materialized yet. Silent to avoid log spam.

		case err != nil:
			log.Warn("aggregator query failed, retrying", "err", err)

		default:
			switch st := resp.InclusionProof.State().(type) {
			case token.Complete:
				if !st.TransactionHash.Equal(c.TransactionHash) || !st.Authenticator.Equal(&c.Authenticator) {
					return nil, fmt.Errorf("request %s was resolved by a conflicting commitment: proof covers transaction %s, submitted %s",
						c.RequestID, st.TransactionHash, c.TransactionHash)
				}

				return resp.InclusionProof, nil

			case token.Incomplete:
				if !loggedIncomplete {
					log.Info("inclusion proof present but incomplete, waiting")
					loggedIncomplete = true
				}
			}
		}

		elapsed := p.clock.Now().Sub(start)
		if elapsed+policy.Interval > policy.Timeout {
			return nil, &PollTimeoutError{RequestID: string(c.RequestID), Elapsed: elapsed}
		}

		if err := p.clock.Sleep(ctx, policy.Interval); err != nil {
			return nil, err
		}
	}
}
