package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tokenwallet/internal/hash"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
)

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.now = c.now.Add(d)

	return nil
}

// scriptedService replays a fixed sequence of proof answers.
type scriptedService struct {
	submits int
	answers []func() (*ProofResponse, error)
	calls   int
}

func (s *scriptedService) SubmitCommitment(ctx context.Context, c *token.Commitment) error {
	s.submits++
	return nil
}

func (s *scriptedService) GetInclusionProof(ctx context.Context, requestID hash.Imprint) (*ProofResponse, error) {
	s.calls++

	if s.calls > len(s.answers) {
		return nil, ErrNotFound
	}

	return s.answers[s.calls-1]()
}

// testCommitment builds a signed commitment for poll tests.
func testCommitment(t *testing.T) *token.Commitment {
	t.Helper()

	pred, key := predicate.ForSecret([]byte("owner"), nil, []byte("salt"))
	state := token.State{Predicate: pred}

	c, err := token.NewCommitment(key, state.Hash(), token.DataHash([]byte("tx")))
	if err != nil {
		t.Fatalf("new commitment: %v", err)
	}

	return c
}

// completeAnswer returns a proof response whose proof is complete.
func completeAnswer(c *token.Commitment) func() (*ProofResponse, error) {
	return func() (*ProofResponse, error) {
		return &ProofResponse{
			Status: StatusOK,
			InclusionProof: &token.InclusionProof{
				Authenticator:   &c.Authenticator,
				TransactionHash: &c.TransactionHash,
			},
		}, nil
	}
}

// TestSubmitAndWait verifies a proof that materializes after a few rounds.
func TestSubmitAndWait(t *testing.T) {
	c := testCommitment(t)

	svc := &scriptedService{
		answers: []func() (*ProofResponse, error){
			func() (*ProofResponse, error) { return nil, ErrNotFound },
			func() (*ProofResponse, error) { return nil, ErrNotFound },
			completeAnswer(c),
		},
	}

	poller := NewPollerWithClock(svc, &fakeClock{})

	proof, err := poller.SubmitAndWait(context.Background(), c, DefaultPolicy())
	if err != nil {
		t.Fatalf("submit and wait: %v", err)
	}

	if svc.submits != 1 {
		t.Errorf("expected one submission, got %d", svc.submits)
	}

	if _, ok := proof.State().(token.Complete); !ok {
		t.Error("returned proof is not complete")
	}
}

// TestWaitInclusionProof_IncompleteThenComplete verifies an incomplete proof
// keeps the loop waiting instead of returning.
func TestWaitInclusionProof_IncompleteThenComplete(t *testing.T) {
	c := testCommitment(t)

	incomplete := func() (*ProofResponse, error) {
		return &ProofResponse{Status: StatusOK, InclusionProof: &token.InclusionProof{}}, nil
	}

	svc := &scriptedService{
		answers: []func() (*ProofResponse, error){incomplete, incomplete, completeAnswer(c)},
	}

	poller := NewPollerWithClock(svc, &fakeClock{})

	proof, err := poller.WaitInclusionProof(context.Background(), c, DefaultPolicy())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if proof.Authenticator == nil || proof.TransactionHash == nil {
		t.Error("returned proof missing fields")
	}

	if svc.calls != 3 {
		t.Errorf("expected 3 queries, got %d", svc.calls)
	}
}

// TestWaitInclusionProof_TransientError verifies transport errors are retried.
func TestWaitInclusionProof_TransientError(t *testing.T) {
	c := testCommitment(t)

	svc := &scriptedService{
		answers: []func() (*ProofResponse, error){
			func() (*ProofResponse, error) { return nil, fmt.Errorf("connection reset") },
			completeAnswer(c),
		},
	}

	poller := NewPollerWithClock(svc, &fakeClock{})

	if _, err := poller.WaitInclusionProof(context.Background(), c, DefaultPolicy()); err != nil {
		t.Fatalf("wait after transient error: %v", err)
	}
}

// TestWaitInclusionProof_ConflictingProof verifies a complete proof covering
// another transaction fails fast instead of being returned or retried.
func TestWaitInclusionProof_ConflictingProof(t *testing.T) {
	c := testCommitment(t)

	// A rival commitment consuming the same state with a different payload.
	pred, key := predicate.ForSecret([]byte("owner"), nil, []byte("salt"))
	state := token.State{Predicate: pred}

	rival, err := token.NewCommitment(key, state.Hash(), token.DataHash([]byte("rival tx")))
	if err != nil {
		t.Fatalf("rival commitment: %v", err)
	}

	if !rival.RequestID.Equal(c.RequestID) {
		t.Fatal("rival commitment does not share the request id")
	}

	svc := &scriptedService{
		answers: []func() (*ProofResponse, error){completeAnswer(rival)},
	}

	poller := NewPollerWithClock(svc, &fakeClock{})

	_, err = poller.WaitInclusionProof(context.Background(), c, DefaultPolicy())
	if err == nil {
		t.Fatal("conflicting proof accepted")
	}

	if !strings.Contains(err.Error(), "conflicting commitment") {
		t.Errorf("unexpected error: %v", err)
	}

	if svc.calls != 1 {
		t.Errorf("conflict should fail on the first answer, got %d queries", svc.calls)
	}
}

// TestWaitInclusionProof_Timeout verifies the deadline and the elapsed report.
func TestWaitInclusionProof_Timeout(t *testing.T) {
	c := testCommitment(t)
	clock := &fakeClock{}

	svc := &scriptedService{}
	poller := NewPollerWithClock(svc, clock)

	policy := RetryPolicy{Timeout: 5 * time.Second, Interval: time.Second}

	_, err := poller.WaitInclusionProof(context.Background(), c, policy)
	if err == nil {
		t.Fatal("expected a timeout")
	}

	var timeout *PollTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected PollTimeoutError, got %T: %v", err, err)
	}

	if timeout.RequestID != string(c.RequestID) {
		t.Errorf("timeout names wrong request: %s", timeout.RequestID)
	}

	if timeout.Elapsed > policy.Timeout {
		t.Errorf("elapsed %s exceeds the deadline %s", timeout.Elapsed, policy.Timeout)
	}

	// Ticks at 0s through 5s inclusive: the tick landing exactly on the
	// deadline is still queried.
	if svc.calls != 6 {
		t.Errorf("expected 6 queries for a 5s deadline at 1s intervals, got %d", svc.calls)
	}
}

// TestWaitInclusionProof_ContextCancel verifies cancellation wins over retry.
func TestWaitInclusionProof_ContextCancel(t *testing.T) {
	c := testCommitment(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := NewPollerWithClock(&scriptedService{}, &fakeClock{})

	_, err := poller.WaitInclusionProof(ctx, c, DefaultPolicy())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
