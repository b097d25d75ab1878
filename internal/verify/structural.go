package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// rawProof is the loosely-typed proof shape used for structural checks.
// Fields stay raw so "absent" and "null" are both detected without parsing.
type rawProof struct {
	Authenticator   json.RawMessage `json:"authenticator"`
	TransactionHash json.RawMessage `json:"transactionHash"`
}

// rawEnvelope is the loosely-typed TXF shape used for structural checks.
type rawEnvelope struct {
	Genesis struct {
		InclusionProof *rawProof `json:"inclusionProof"`
	} `json:"genesis"`
	Transactions []struct {
		InclusionProof *rawProof       `json:"inclusionProof"`
		Commitment     json.RawMessage `json:"commitment"`
	} `json:"transactions"`
}

// ValidateStructure checks a raw token JSON for structural completeness:
// the genesis must carry an authenticator, and every transfer must too unless
// allowUncommitted is set. A missing transaction hash alone is survivable and
// reported as a warning.
func ValidateStructure(raw []byte, allowUncommitted bool) *Result {
	result := &Result{}

	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		result.Errorf("malformed token JSON: %v", err)
		return result
	}

	checkProof(result, "genesis", env.Genesis.InclusionProof, false)

	for i, tx := range env.Transactions {
		checkProof(result, txLabel(i), tx.InclusionProof, allowUncommitted)
	}

	return result
}

// checkProof validates one proof's structural completeness.
func checkProof(result *Result, label string, proof *rawProof, allowUncommitted bool) {
	if proof == nil {
		if !allowUncommitted {
			result.Errorf("%s: missing inclusionProof", label)
		}
		return
	}

	if isNull(proof.Authenticator) {
		if !allowUncommitted {
			result.Errorf("%s: inclusionProof.authenticator is missing", label)
		}
		return
	}

	if isNull(proof.TransactionHash) {
		result.Warnf("%s: inclusionProof.transactionHash is missing", label)
	}
}

// isNull reports whether a raw JSON field is absent or literal null.
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// txLabel names a transfer by position for error messages.
func txLabel(i int) string {
	return fmt.Sprintf("transaction[%d]", i)
}
