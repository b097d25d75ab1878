package trustbase

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tokenwallet/internal/hash"
	"tokenwallet/internal/token"
)

// signDevCert builds a certificate over root, signed by the named dev
// validators.
func signDevCert(t *testing.T, root hash.Imprint, epoch uint64, signers []int) *token.UnicityCertificate {
	t.Helper()

	cert := &token.UnicityCertificate{
		RootHash:     root,
		Epoch:        epoch,
		SignerBitmap: BuildSignerBitmap(signers, devValidatorCount),
	}

	payload, err := cert.SigningPayload()
	if err != nil {
		t.Fatalf("signing payload: %v", err)
	}

	sigs := make([][]byte, 0, len(signers))
	for _, idx := range signers {
		kp, err := DevKeyPair(idx)
		if err != nil {
			t.Fatalf("dev key %d: %v", idx, err)
		}

		sigs = append(sigs, kp.Sign(payload))
	}

	cert.Signature, err = AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	return cert
}

// TestVerifyCertificate_Quorum verifies quorum enforcement with dev keys.
func TestVerifyCertificate_Quorum(t *testing.T) {
	tb := Dev()
	root := hash.Sum([]byte("root"))

	if err := tb.VerifyCertificate(signDevCert(t, root, 1, []int{0, 1})); err != nil {
		t.Fatalf("quorum certificate rejected: %v", err)
	}

	if err := tb.VerifyCertificate(signDevCert(t, root, 1, []int{0, 1, 2})); err != nil {
		t.Fatalf("full certificate rejected: %v", err)
	}

	if err := tb.VerifyCertificate(signDevCert(t, root, 1, []int{1})); err == nil {
		t.Error("below-quorum certificate accepted")
	}

	if err := tb.VerifyCertificate(nil); err == nil {
		t.Error("nil certificate accepted")
	}
}

// TestVerifyCertificate_Tamper verifies signature binding to root, epoch,
// and signer set.
func TestVerifyCertificate_Tamper(t *testing.T) {
	tb := Dev()
	cert := signDevCert(t, hash.Sum([]byte("root")), 1, []int{0, 1})

	wrongRoot := *cert
	wrongRoot.RootHash = hash.Sum([]byte("other root"))
	if err := tb.VerifyCertificate(&wrongRoot); err == nil {
		t.Error("certificate accepted for a different root")
	}

	wrongEpoch := *cert
	wrongEpoch.Epoch = 2
	if err := tb.VerifyCertificate(&wrongEpoch); err == nil {
		t.Error("certificate accepted for a different epoch")
	}

	// Claiming a signer that did not sign must break aggregate verification.
	wrongSigners := *cert
	wrongSigners.SignerBitmap = BuildSignerBitmap([]int{0, 2}, devValidatorCount)
	if err := tb.VerifyCertificate(&wrongSigners); err == nil {
		t.Error("certificate accepted with a mismatched signer bitmap")
	}
}

// TestVerifyCertificate_SingleSigner verifies the unaggregated path of a
// one-validator trust base.
func TestVerifyCertificate_SingleSigner(t *testing.T) {
	kp, err := DevKeyPair(0)
	if err != nil {
		t.Fatalf("dev key: %v", err)
	}

	tb := &TrustBase{
		Epoch:      1,
		Quorum:     1,
		Validators: []Validator{{ID: "solo", BLSPublicKey: kp.PublicKeyBytes()}},
	}

	cert := &token.UnicityCertificate{
		RootHash:     hash.Sum([]byte("root")),
		Epoch:        1,
		SignerBitmap: BuildSignerBitmap([]int{0}, 1),
	}

	payload, err := cert.SigningPayload()
	if err != nil {
		t.Fatalf("signing payload: %v", err)
	}

	cert.Signature = kp.Sign(payload)

	if err := tb.VerifyCertificate(cert); err != nil {
		t.Fatalf("single-signer certificate rejected: %v", err)
	}

	// A foreign key's signature must not pass.
	other, err := DevKeyPair(1)
	if err != nil {
		t.Fatalf("dev key: %v", err)
	}

	cert.Signature = other.Sign(payload)
	if err := tb.VerifyCertificate(cert); err == nil {
		t.Error("certificate signed by a foreign key accepted")
	}
}

// TestSignerBitmap verifies bitmap round trips.
func TestSignerBitmap(t *testing.T) {
	cases := [][]int{
		{0},
		{0, 1, 2},
		{2, 7, 8, 15},
		nil,
	}

	for _, indices := range cases {
		bitmap := BuildSignerBitmap(indices, 16)
		got := ParseSignerBitmap(bitmap)

		if len(indices) == 0 && len(got) == 0 {
			continue
		}

		if !reflect.DeepEqual(got, indices) {
			t.Errorf("bitmap round trip: got %v, want %v", got, indices)
		}
	}
}

// TestLoad verifies file parsing and validation.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustbase.json")

	data, err := json.Marshal(Dev())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tb, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if tb.Quorum != 2 || len(tb.Validators) != devValidatorCount {
		t.Errorf("unexpected trust base: quorum=%d validators=%d", tb.Quorum, len(tb.Validators))
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"epoch":1,"quorum":5,"validators":[]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(bad); err == nil {
		t.Error("expected error for an empty validator set")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

// TestResolve verifies the source precedence: flag, environment, dev opt-in.
func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustbase.json")

	data, err := json.Marshal(Dev())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv(PathEnv, "")

	if _, err := Resolve(path, false); err != nil {
		t.Errorf("resolve by flag: %v", err)
	}

	t.Setenv(PathEnv, path)

	if _, err := Resolve("", false); err != nil {
		t.Errorf("resolve by env: %v", err)
	}

	t.Setenv(PathEnv, "")

	if _, err := Resolve("", false); err == nil {
		t.Error("resolve should fail with no source and no dev opt-in")
	}

	tb, err := Resolve("", true)
	if err != nil {
		t.Fatalf("resolve dev: %v", err)
	}

	if len(tb.Validators) != devValidatorCount {
		t.Errorf("dev trust base has %d validators", len(tb.Validators))
	}
}
