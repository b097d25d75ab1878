package verify

import (
	"tokenwallet/internal/token"
	"tokenwallet/internal/trustbase"
)

// ValidateToken verifies a parsed token's full proof chain against a trust
// base: the genesis proof, then every transfer. Hash mismatches are fatal.
// A source-state mismatch means another transfer consumed the same state
// first (double-spend), a transaction-hash mismatch means the proof was
// substituted for a different payload. When allowUncommitted is set, a
// trailing transfer without a proof is skipped instead of failing.
func ValidateToken(t *token.Token, tb *trustbase.TrustBase, allowUncommitted bool) *Result {
	result := &Result{}

	validateGenesis(result, t, tb)
	validateChain(result, t)

	for i := range t.Transactions {
		tx := &t.Transactions[i]

		if tx.InclusionProof == nil {
			last := i == len(t.Transactions)-1
			if allowUncommitted && last {
				continue
			}

			result.Errorf("%s: no inclusion proof", txLabel(i))
			continue
		}

		validateTransfer(result, txLabel(i), tx, tb)
	}

	return result
}

// validateGenesis verifies the mint proof: signature, recomputed hashes,
// Merkle inclusion, and the consensus certificate.
func validateGenesis(result *Result, t *token.Token, tb *trustbase.TrustBase) {
	proof := t.Genesis.InclusionProof
	if proof == nil {
		result.Errorf("genesis: no inclusion proof")
		return
	}

	complete, ok := proof.State().(token.Complete)
	if !ok {
		result.Errorf("genesis: inclusion proof incomplete")
		return
	}

	genesisHash, err := t.Genesis.Data.Hash()
	if err != nil {
		result.Errorf("genesis: %v", err)
		return
	}

	if !complete.TransactionHash.Equal(genesisHash) {
		result.Errorf("genesis: recorded hash %s does not match recomputed %s",
			complete.TransactionHash, genesisHash)
		return
	}

	mintState, err := token.MintStateHash(t.ID)
	if err != nil {
		result.Errorf("genesis: %v", err)
		return
	}

	if !complete.Authenticator.StateHash.Equal(mintState) {
		result.Errorf("genesis: authenticator state hash %s does not match mint state %s",
			complete.Authenticator.StateHash, mintState)
		return
	}

	validateProof(result, "genesis", proof, &complete, tb)
}

// validateTransfer verifies one transfer's proof against its locally
// recomputed hashes.
func validateTransfer(result *Result, label string, tx *token.Transaction, tb *trustbase.TrustBase) {
	complete, ok := tx.InclusionProof.State().(token.Complete)
	if !ok {
		result.Errorf("%s: inclusion proof incomplete", label)
		return
	}

	// Double-spend guard: the proof's consumed state must be the one this
	// transfer claims to consume.
	localSource := tx.Data.SourceState.Hash()
	if !complete.Authenticator.StateHash.Equal(localSource) {
		result.Errorf("%s: double-spend: proof consumed state %s, expected %s",
			label, complete.Authenticator.StateHash, localSource)
		return
	}

	// Substitution guard: the proof must cover this transfer's payload.
	localTx, err := tx.Data.Hash()
	if err != nil {
		result.Errorf("%s: %v", label, err)
		return
	}

	if !complete.TransactionHash.Equal(localTx) {
		result.Errorf("%s: proof covers transaction %s, expected %s",
			label, complete.TransactionHash, localTx)
		return
	}

	validateProof(result, label, tx.InclusionProof, &complete, tb)
}

// validateProof verifies the parts shared by genesis and transfers: the
// authenticator signature, the Merkle path, and the certificate.
func validateProof(result *Result, label string, proof *token.InclusionProof, complete *token.Complete, tb *trustbase.TrustBase) {
	if !complete.Authenticator.Verify(complete.TransactionHash) {
		result.Errorf("%s: authenticator signature invalid", label)
		return
	}

	requestID, err := token.DeriveRequestID(complete.Authenticator.PublicKey, complete.Authenticator.StateHash)
	if err != nil {
		result.Errorf("%s: %v", label, err)
		return
	}

	if proof.MerkleTreePath == nil {
		result.Errorf("%s: missing merkle tree path", label)
		return
	}

	leaf, err := token.LeafValue(requestID, &complete.Authenticator, complete.TransactionHash)
	if err != nil {
		result.Errorf("%s: %v", label, err)
		return
	}

	if err := proof.MerkleTreePath.VerifyPath(leaf); err != nil {
		result.Errorf("%s: %v", label, err)
		return
	}

	cert := proof.UnicityCertificate
	if cert == nil {
		result.Errorf("%s: missing unicity certificate", label)
		return
	}

	if !cert.RootHash.Equal(proof.MerkleTreePath.Root) {
		result.Errorf("%s: certificate root %s does not match path root %s",
			label, cert.RootHash, proof.MerkleTreePath.Root)
		return
	}

	if err := tb.VerifyCertificate(cert); err != nil {
		result.Errorf("%s: %v", label, err)
	}
}

// validateChain checks the transfer chain is contiguous: each transfer must
// consume the state addressed by its predecessor, starting from genesis.
func validateChain(result *Result, t *token.Token) {
	expected := t.Genesis.Data.Recipient

	for i := range t.Transactions {
		tx := &t.Transactions[i]

		sourceAddr := tx.Data.SourceState.Predicate.Address()
		if sourceAddr != expected {
			result.Errorf("%s: consumes state at %s, but the previous owner is %s",
				txLabel(i), sourceAddr, expected)
		}

		expected = tx.Data.Recipient
	}

	if t.State != nil {
		if addr := t.State.Predicate.Address(); addr != expected {
			result.Errorf("current state address %s does not match latest recipient %s", addr, expected)
		}
	}
}
