package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/hash"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/token"
	"tokenwallet/internal/trustbase"
	"tokenwallet/internal/txf"
)

// fakeAggregator materializes a complete proof for every accepted commitment.
// The first commitment for a request wins; resubmissions are absorbed, which
// mirrors the idempotent SUCCESS answer of the real service.
type fakeAggregator struct {
	proofs map[hash.Imprint]*token.InclusionProof
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{proofs: make(map[hash.Imprint]*token.InclusionProof)}
}

func (f *fakeAggregator) SubmitCommitment(ctx context.Context, c *token.Commitment) error {
	if _, ok := f.proofs[c.RequestID]; ok {
		return nil
	}

	proof, err := certify(c)
	if err != nil {
		return err
	}

	f.proofs[c.RequestID] = proof

	return nil
}

func (f *fakeAggregator) GetInclusionProof(ctx context.Context, requestID hash.Imprint) (*aggregator.ProofResponse, error) {
	proof, ok := f.proofs[requestID]
	if !ok {
		return nil, aggregator.ErrNotFound
	}

	return &aggregator.ProofResponse{Status: aggregator.StatusOK, InclusionProof: proof}, nil
}

// certify builds a single-leaf proof certified by a dev-validator quorum.
func certify(c *token.Commitment) (*token.InclusionProof, error) {
	leaf, err := token.LeafValue(c.RequestID, &c.Authenticator, c.TransactionHash)
	if err != nil {
		return nil, err
	}

	root, err := hash.FromBytes(leaf)
	if err != nil {
		return nil, err
	}

	cert := &token.UnicityCertificate{
		RootHash:     root,
		Epoch:        1,
		SignerBitmap: trustbase.BuildSignerBitmap([]int{0, 1}, 3),
	}

	payload, err := cert.SigningPayload()
	if err != nil {
		return nil, err
	}

	var sigs [][]byte
	for _, idx := range []int{0, 1} {
		kp, err := trustbase.DevKeyPair(idx)
		if err != nil {
			return nil, err
		}

		sigs = append(sigs, kp.Sign(payload))
	}

	cert.Signature, err = trustbase.AggregateSignatures(sigs)
	if err != nil {
		return nil, err
	}

	auth := c.Authenticator
	txHash := c.TransactionHash

	return &token.InclusionProof{
		MerkleTreePath:     &token.MerkleTreePath{Root: root},
		Authenticator:      &auth,
		TransactionHash:    &txHash,
		UnicityCertificate: cert,
	}, nil
}

var (
	aliceSecret = []byte("alice wallet secret")
	bobSecret   = []byte("bob wallet secret")
)

// recipientKeyHex returns the hex reusable public key of a secret, the form a
// recipient hands to a sender.
func recipientKeyHex(secret []byte) string {
	key := predicate.DeriveKey(secret, nil)
	return hex.EncodeToString(key.Public().(ed25519.PublicKey))
}

// mintFor mints a fresh token owned by the given secret.
func mintFor(t *testing.T, svc aggregator.Service, secret []byte) *txf.Envelope {
	t.Helper()

	env, err := Mint(context.Background(), aggregator.NewPoller(svc), MintOptions{
		TokenType: "demo",
		Secret:    secret,
		TrustBase: trustbase.Dev(),
		Policy:    aggregator.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	return env
}

// TestMintSendReceive_Online walks the full online transfer: mint by alice,
// submit-now send to bob, online receive by bob.
func TestMintSendReceive_Online(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	minted := mintFor(t, svc, aliceSecret)

	if minted.State == nil {
		t.Fatal("minted envelope has no state")
	}

	if minted.Integrity == nil {
		t.Fatal("minted envelope has no integrity hash")
	}

	sent, err := Send(ctx, minted, poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		Message:   "for bob",
		SubmitNow: true,
		Policy:    aggregator.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if sent.State != nil {
		t.Error("sent envelope still has a spendable state")
	}

	if sent.Status != txf.StatusTransferred {
		t.Errorf("sent status = %s, want %s", sent.Status, txf.StatusTransferred)
	}

	last := sent.Transactions[len(sent.Transactions)-1]
	if last.InclusionProof == nil || last.Commitment == nil {
		t.Fatal("submit-now transfer missing proof or commitment")
	}

	received, err := Receive(ctx, sent, poller, ReceiveOptions{
		Secret:    bobSecret,
		TrustBase: trustbase.Dev(),
		Policy:    aggregator.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if received.Status != txf.StatusConfirmed {
		t.Errorf("received status = %s, want %s", received.Status, txf.StatusConfirmed)
	}

	if received.State == nil {
		t.Fatal("received envelope has no state")
	}

	if received.State.Predicate.Address() != last.Data.Recipient {
		t.Error("received state is not held at the declared recipient address")
	}
}

// TestSendReceive_OfflinePackage walks the offline flow: package embedded by
// alice, pending receive by bob, then online resolution submitting the
// sender's pre-signed commitment.
func TestSendReceive_OfflinePackage(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	minted := mintFor(t, svc, aliceSecret)

	sent, err := Send(ctx, minted, poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: false,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if sent.OfflineTransfer == nil {
		t.Fatal("offline send produced no package")
	}

	last := sent.Transactions[len(sent.Transactions)-1]
	if last.InclusionProof != nil || last.Commitment != nil {
		t.Error("offline transfer should carry neither proof nor commitment inline")
	}

	// First hop: bob accepts the file without touching the network.
	pending, err := Receive(ctx, sent, nil, ReceiveOptions{
		Secret:  bobSecret,
		Offline: true,
	})
	if err != nil {
		t.Fatalf("offline receive: %v", err)
	}

	if pending.Status != txf.StatusPending {
		t.Errorf("pending status = %s, want %s", pending.Status, txf.StatusPending)
	}

	if pending.OfflineTransfer == nil {
		t.Error("pending envelope lost its offline package")
	}

	// Second hop: bob resolves on-chain, which submits the package commitment.
	confirmed, err := Receive(ctx, pending, poller, ReceiveOptions{
		Secret:    bobSecret,
		TrustBase: trustbase.Dev(),
		Policy:    aggregator.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("online resolution: %v", err)
	}

	if confirmed.Status != txf.StatusConfirmed {
		t.Errorf("confirmed status = %s, want %s", confirmed.Status, txf.StatusConfirmed)
	}

	if confirmed.OfflineTransfer != nil {
		t.Error("confirmed envelope kept its offline package")
	}

	resolved := confirmed.Transactions[len(confirmed.Transactions)-1]
	if resolved.InclusionProof == nil || resolved.Commitment == nil {
		t.Error("resolution did not backfill the transfer record")
	}
}

// TestSend_RerunConflict verifies re-running a send never persists the first
// run's proof. Each run draws a fresh salt, so the rebuilt transfer has a new
// transaction hash under the same request id; the aggregator keeps the first
// run's proof and the second run must fail instead of writing a transfer its
// proof does not cover.
func TestSend_RerunConflict(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	minted := mintFor(t, svc, aliceSecret)

	opts := SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: true,
		Policy:    aggregator.DefaultPolicy(),
	}

	first, err := Send(ctx, minted, poller, opts)
	if err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Simulate an interrupted run: the caller still holds the pre-send file
	// and retries against the already-resolved request id.
	rerun, err := Send(ctx, minted, poller, opts)
	if err == nil {
		t.Fatalf("re-run send succeeded with a foreign proof: %+v", rerun.Transactions)
	}

	if !strings.Contains(err.Error(), "conflicting commitment") {
		t.Errorf("unexpected error: %v", err)
	}

	// The first run's envelope stays the valid one.
	received, err := Receive(ctx, first, poller, ReceiveOptions{
		Secret:    bobSecret,
		TrustBase: trustbase.Dev(),
	})
	if err != nil {
		t.Fatalf("receive of the first send: %v", err)
	}

	if received.Status != txf.StatusConfirmed {
		t.Errorf("received status = %s, want %s", received.Status, txf.StatusConfirmed)
	}
}

// TestSend_OwnershipGate verifies only the state's key can send.
func TestSend_OwnershipGate(t *testing.T) {
	svc := newFakeAggregator()
	minted := mintFor(t, svc, aliceSecret)

	_, err := Send(context.Background(), minted, aggregator.NewPoller(svc), SendOptions{
		Secret:    bobSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: true,
	})
	if err == nil || !strings.Contains(err.Error(), "does not control") {
		t.Errorf("foreign secret allowed to send: %v", err)
	}
}

// TestSend_InTransit verifies a stateless envelope cannot be sent.
func TestSend_InTransit(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	sent, err := Send(ctx, mintFor(t, svc, aliceSecret), poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := Send(ctx, sent, poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: true,
	}); err == nil {
		t.Error("in-transit envelope allowed to send again")
	}
}

// TestReceive_WrongRecipient verifies the admission gate fails closed.
func TestReceive_WrongRecipient(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	sent, err := Send(ctx, mintFor(t, svc, aliceSecret), poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: recipientKeyHex(bobSecret),
		SubmitNow: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = Receive(ctx, sent, poller, ReceiveOptions{
		Secret:    []byte("stranger secret"),
		TrustBase: trustbase.Dev(),
	})
	if err == nil || !strings.Contains(err.Error(), "not addressed") {
		t.Errorf("foreign secret allowed to receive: %v", err)
	}
}

// TestReceive_DataCommitment verifies the state-data gate in both directions.
func TestReceive_DataCommitment(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	payload := []byte("bob's state data")

	sent, err := Send(ctx, mintFor(t, svc, aliceSecret), poller, SendOptions{
		Secret:            aliceSecret,
		Recipient:         recipientKeyHex(bobSecret),
		RecipientDataHash: token.DataHash(payload),
		SubmitNow:         true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	base := ReceiveOptions{Secret: bobSecret, TrustBase: trustbase.Dev()}

	// Committed hash, no data supplied.
	if _, err := Receive(ctx, sent, poller, base); err == nil {
		t.Error("receive succeeded without the committed state data")
	}

	// Committed hash, wrong data.
	wrong := base
	wrong.StateData = []byte("something else")
	if _, err := Receive(ctx, sent, poller, wrong); err == nil {
		t.Error("receive succeeded with mismatched state data")
	}

	// Committed hash, matching data.
	right := base
	right.StateData = payload

	received, err := Receive(ctx, sent, poller, right)
	if err != nil {
		t.Fatalf("receive with committed data: %v", err)
	}

	if string(received.State.Data) != string(payload) {
		t.Error("received state data does not match the commitment")
	}

	// No commitment: supplying data must fail.
	plain, err := Send(ctx, mintFor(t, svc, bobSecret), poller, SendOptions{
		Secret:    bobSecret,
		Recipient: recipientKeyHex(aliceSecret),
		SubmitNow: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = Receive(ctx, plain, poller, ReceiveOptions{
		Secret:    aliceSecret,
		TrustBase: trustbase.Dev(),
		StateData: []byte("uninvited data"),
	})
	if err == nil {
		t.Error("receive accepted state data the transfer never committed to")
	}
}

// TestReceive_MaskedPredicate verifies a nonce-derived one-time address.
func TestReceive_MaskedPredicate(t *testing.T) {
	svc := newFakeAggregator()
	poller := aggregator.NewPoller(svc)
	ctx := context.Background()

	nonce := []byte("one-time nonce from bob")

	// Bob computes his one-time address and hands it to alice.
	masked, _ := predicate.ForSecret(bobSecret, nonce, nil)

	sent, err := Send(ctx, mintFor(t, svc, aliceSecret), poller, SendOptions{
		Secret:    aliceSecret,
		Recipient: string(masked.Address()),
		SubmitNow: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	received, err := Receive(ctx, sent, poller, ReceiveOptions{
		Secret:    bobSecret,
		Nonce:     nonce,
		TrustBase: trustbase.Dev(),
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if received.State.Predicate.Kind() != predicate.KindMasked {
		t.Errorf("received predicate kind = %s, want %s", received.State.Predicate.Kind(), predicate.KindMasked)
	}

	// Without the nonce, the derived address cannot match.
	if _, err := Receive(ctx, sent, poller, ReceiveOptions{
		Secret:    bobSecret,
		TrustBase: trustbase.Dev(),
	}); err == nil {
		t.Error("masked transfer received without its nonce")
	}
}
