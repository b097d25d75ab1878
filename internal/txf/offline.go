package txf

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"tokenwallet/internal/token"
)

// EncodeCommitmentBlob serializes a pre-signed commitment for embedding in a
// TXF file: canonical CBOR, zstd-compressed, base64-encoded.
func EncodeCommitmentBlob(c *token.Commitment) (string, error) {
	raw, err := token.EncodeCommitment(c)
	if err != nil {
		return "", err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	compressed := encoder.EncodeAll(raw, nil)

	return base64.StdEncoding.EncodeToString(compressed), nil
}

// DecodeCommitmentBlob reverses EncodeCommitmentBlob. The commitment comes
// back verbatim: the recipient can forward it but never fabricate one, since
// the sender's signature cannot be reproduced.
func DecodeCommitmentBlob(blob string) (*token.Commitment, error) {
	compressed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode commitment blob:\n%w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress commitment blob:\n%w", err)
	}

	return token.DecodeCommitment(raw)
}
