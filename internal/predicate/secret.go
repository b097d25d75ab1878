package predicate

import (
	"fmt"
	"os"
	"strings"
)

// secretEnv is the environment variable holding the wallet secret.
const secretEnv = "WALLET_SECRET"

// Secret holds a wallet secret in a zeroable buffer. Callers acquire it,
// use it for key derivation, and Zero it before returning.
type Secret struct {
	buf []byte
}

// AcquireSecret loads the wallet secret from the given file, or from the
// WALLET_SECRET environment variable when path is empty.
func AcquireSecret(path string) (*Secret, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read secret file:\n%w", err)
		}

		return &Secret{buf: []byte(strings.TrimSpace(string(data)))}, nil
	}

	if v := os.Getenv(secretEnv); v != "" {
		return &Secret{buf: []byte(v)}, nil
	}

	return nil, fmt.Errorf("no wallet secret: set %s or pass --secret-file", secretEnv)
}

// Bytes returns the secret bytes. The slice is owned by the Secret and
// becomes invalid after Zero.
func (s *Secret) Bytes() []byte {
	return s.buf
}

// Zero overwrites the secret buffer. Safe to call more than once.
func (s *Secret) Zero() {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
}
