package trustbase

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"tokenwallet/internal/token"
)

// PathEnv overrides the on-disk trust base location.
const PathEnv = "TRUSTBASE_PATH"

// Validator is one root signer of the trust base.
type Validator struct {
	ID           string `json:"id"`
	BLSPublicKey []byte `json:"blsPublicKey"`
}

// TrustBase is the set of root signer keys needed to verify aggregator
// consensus certificates, plus the quorum rule.
type TrustBase struct {
	Epoch      uint64      `json:"epoch"`
	Quorum     int         `json:"quorum"`
	Validators []Validator `json:"validators"`
}

// Load reads a trust base from a JSON file.
func Load(path string) (*TrustBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust base:\n%w", err)
	}

	var tb TrustBase
	if err := json.Unmarshal(data, &tb); err != nil {
		return nil, fmt.Errorf("parse trust base %s:\n%w", path, err)
	}

	if err := tb.validate(); err != nil {
		return nil, fmt.Errorf("trust base %s:\n%w", path, err)
	}

	return &tb, nil
}

// Resolve picks the trust base source: explicit path first, then the
// TRUSTBASE_PATH environment variable, and the built-in dev trust base only
// when explicitly permitted.
func Resolve(flagPath string, allowDev bool) (*TrustBase, error) {
	if flagPath != "" {
		return Load(flagPath)
	}

	if envPath := os.Getenv(PathEnv); envPath != "" {
		return Load(envPath)
	}

	if allowDev {
		return Dev(), nil
	}

	return nil, fmt.Errorf("no trust base: set %s, pass --trustbase, or permit the dev trust base", PathEnv)
}

// validate checks the trust base is internally consistent.
func (tb *TrustBase) validate() error {
	if len(tb.Validators) == 0 {
		return fmt.Errorf("no validators")
	}

	if tb.Quorum < 1 || tb.Quorum > len(tb.Validators) {
		return fmt.Errorf("invalid quorum %d for %d validators", tb.Quorum, len(tb.Validators))
	}

	for i, v := range tb.Validators {
		if len(v.BLSPublicKey) != BLSPublicKeySize {
			return fmt.Errorf("validator %d (%s): invalid BLS key size %d", i, v.ID, len(v.BLSPublicKey))
		}
	}

	return nil
}

// VerifyCertificate checks a unicity certificate against the trust base:
// the signer bitmap must name a quorum of known validators and the aggregate
// signature must verify over the certificate's signing payload.
func (tb *TrustBase) VerifyCertificate(cert *token.UnicityCertificate) error {
	if cert == nil {
		return fmt.Errorf("missing unicity certificate")
	}

	indices := ParseSignerBitmap(cert.SignerBitmap)
	if len(indices) < tb.Quorum {
		return fmt.Errorf("certificate signers below quorum: got %d, need %d", len(indices), tb.Quorum)
	}

	pubkeys := make([][]byte, 0, len(indices))
	for _, idx := range indices {
		if idx >= len(tb.Validators) {
			return fmt.Errorf("certificate names unknown validator index %d", idx)
		}

		pubkeys = append(pubkeys, tb.Validators[idx].BLSPublicKey)
	}

	payload, err := cert.SigningPayload()
	if err != nil {
		return err
	}

	// Single-signer trust bases carry a plain signature, no aggregation.
	if len(pubkeys) == 1 {
		if !VerifyBLS(cert.Signature, payload, pubkeys[0]) {
			return fmt.Errorf("certificate signature invalid for epoch %d root %s", cert.Epoch, cert.RootHash)
		}

		return nil
	}

	if !VerifyAggregated(cert.Signature, payload, pubkeys) {
		return fmt.Errorf("certificate signature invalid for epoch %d root %s", cert.Epoch, cert.RootHash)
	}

	return nil
}

// devValidatorCount is the size of the built-in dev trust base.
const devValidatorCount = 3

// Dev returns the built-in development trust base. Its keys are derived from
// public seeds, so it proves nothing; callers must gate it behind an explicit
// opt-in.
func Dev() *TrustBase {
	tb := &TrustBase{Epoch: 1, Quorum: 2}

	for i := 0; i < devValidatorCount; i++ {
		kp, _ := DevKeyPair(i)

		tb.Validators = append(tb.Validators, Validator{
			ID:           fmt.Sprintf("dev-%d", i),
			BLSPublicKey: kp.PublicKeyBytes(),
		})
	}

	return tb
}

// DevKeyPair derives the deterministic key pair of a dev trust-base validator.
func DevKeyPair(index int) (*BLSKeyPair, error) {
	h := blake3.New()
	h.Write([]byte("tokenwallet-dev-validator"))
	h.Write([]byte{byte(index)})

	var seed [32]byte
	h.Sum(seed[:0])

	return GenerateBLSKeyFromSeed(seed[:])
}
