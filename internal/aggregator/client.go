package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tokenwallet/internal/hash"
	"tokenwallet/internal/token"
)

const (
	// URLEnv overrides the aggregator endpoint.
	URLEnv = "AGGREGATOR_URL"

	// StatusSuccess is the aggregator's accepted-submission status.
	// Resubmitting an identical commitment also yields SUCCESS.
	StatusSuccess = "SUCCESS"

	// StatusOK marks a proof response whose request is included (state spent).
	StatusOK = "OK"

	// StatusPathNotIncluded marks a proof response whose request is not in
	// the tree (state unspent).
	StatusPathNotIncluded = "PATH_NOT_INCLUDED"

	// rpcCodeNotFound is the JSON-RPC error code for a not-yet-known request.
	rpcCodeNotFound = -32001

	// requestTimeout bounds a single aggregator round trip.
	requestTimeout = 15 * time.Second
)

// ErrNotFound means the aggregator does not know the request yet. During
// polling this is not an error, it means "keep waiting".
var ErrNotFound = errors.New("inclusion proof not found")

// ProofResponse is the aggregator's answer to get_inclusion_proof.
type ProofResponse struct {
	Status         string                `json:"status"`
	InclusionProof *token.InclusionProof `json:"inclusionProof"`
}

// Service is the aggregator surface the wallet consumes.
type Service interface {
	// SubmitCommitment submits a signed commitment. Idempotent.
	SubmitCommitment(ctx context.Context, c *token.Commitment) error

	// GetInclusionProof fetches the proof for a request identifier.
	// Returns ErrNotFound when the aggregator does not know the request.
	GetInclusionProof(ctx context.Context, requestID hash.Imprint) (*ProofResponse, error)
}

// Client talks JSON-RPC 2.0 over HTTP to an aggregator endpoint. Each request
// is stateless; no session or pooling beyond the standard transport.
type Client struct {
	endpoint string       // endpoint is the aggregator base URL
	http     *http.Client // http is the underlying HTTP client
	nextID   int64        // nextID is the JSON-RPC request id counter
}

// New creates a client for the given aggregator endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int64           `json:"id"`
}

// SubmitCommitment submits a commitment via submit_commitment.
func (c *Client) SubmitCommitment(ctx context.Context, commitment *token.Commitment) error {
	params := map[string]any{
		"requestId":       commitment.RequestID,
		"transactionHash": commitment.TransactionHash,
		"authenticator":   commitment.Authenticator,
	}

	var result struct {
		Status string `json:"status"`
	}

	if err := c.call(ctx, "submit_commitment", params, &result); err != nil {
		return fmt.Errorf("submit commitment %s:\n%w", commitment.RequestID, err)
	}

	if result.Status != StatusSuccess {
		return fmt.Errorf("commitment %s rejected: status %s", commitment.RequestID, result.Status)
	}

	return nil
}

// GetInclusionProof fetches the inclusion proof for a request identifier via
// get_inclusion_proof. HTTP 404 and the JSON-RPC not-found code both map to
// ErrNotFound.
func (c *Client) GetInclusionProof(ctx context.Context, requestID hash.Imprint) (*ProofResponse, error) {
	params := map[string]any{"requestId": requestID}

	var result ProofResponse
	if err := c.call(ctx, "get_inclusion_proof", params, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// call performs one JSON-RPC round trip.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.nextID++
	reqID := c.nextID

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: reqID})
	if err != nil {
		return fmt.Errorf("marshal %s request:\n%w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request:\n%w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("POST %s %s:\n%w", c.endpoint, method, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response:\n%w", method, err)
	}

	if envelope.Error != nil {
		if envelope.Error.Code == rpcCodeNotFound {
			return ErrNotFound
		}

		return fmt.Errorf("%s: rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}

	if envelope.ID != reqID {
		return fmt.Errorf("%s: response id mismatch: expected %d, got %d", method, reqID, envelope.ID)
	}

	return json.Unmarshal(envelope.Result, result)
}
