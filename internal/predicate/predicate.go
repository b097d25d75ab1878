package predicate

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"tokenwallet/internal/hash"
)

const (
	// AddressPrefix marks wallet addresses in text form.
	AddressPrefix = "addr1"

	// KindMasked is a one-time predicate whose key is bound to a nonce.
	KindMasked = "masked"

	// KindUnmasked is a reusable predicate whose address is bound to a transfer salt.
	KindUnmasked = "unmasked"
)

// Address is the text form of a predicate's spending address.
type Address string

// Valid reports whether the address is well-formed.
func (a Address) Valid() bool {
	if !strings.HasPrefix(string(a), AddressPrefix) {
		return false
	}

	digest := strings.TrimPrefix(string(a), AddressPrefix)
	b, err := hex.DecodeString(digest)

	return err == nil && len(b) == hash.DigestSize
}

// Predicate is a spending condition. Exactly two kinds exist: Masked and Unmasked.
type Predicate interface {
	// Kind returns KindMasked or KindUnmasked.
	Kind() string

	// PublicKey returns the owner public key bound to the predicate.
	PublicKey() []byte

	// Address derives the spending address for the predicate.
	Address() Address
}

// Unmasked is a reusable predicate. The address binds the owner key to the
// sender-chosen transfer salt, so the same key yields a fresh address per transfer.
type Unmasked struct {
	Key  []byte // Key is the owner's Ed25519 public key
	Salt []byte // Salt is the transfer salt recorded in the transaction data
}

// Kind returns KindUnmasked.
func (p Unmasked) Kind() string { return KindUnmasked }

// PublicKey returns the owner public key.
func (p Unmasked) PublicKey() []byte { return p.Key }

// Address derives the unmasked spending address.
func (p Unmasked) Address() Address {
	return deriveAddress("tokenwallet-addr-unmasked", p.Key, p.Salt)
}

// Masked is a one-time predicate. The owner key itself is derived from the
// secret and a recipient-chosen nonce, so the key is never reused.
type Masked struct {
	Key   []byte // Key is the one-time Ed25519 public key
	Nonce []byte // Nonce is the recipient-chosen nonce the key was derived with
}

// Kind returns KindMasked.
func (p Masked) Kind() string { return KindMasked }

// PublicKey returns the one-time public key.
func (p Masked) PublicKey() []byte { return p.Key }

// Address derives the masked spending address.
func (p Masked) Address() Address {
	return deriveAddress("tokenwallet-addr-masked", p.Key, p.Nonce)
}

// deriveAddress computes a domain-separated address digest.
func deriveAddress(domain string, pubkey, binder []byte) Address {
	imp := hash.Keyed(domain, pubkey, binder)

	digest, _ := imp.Bytes()

	return Address(AddressPrefix + hex.EncodeToString(digest))
}

// DeriveKey derives a deterministic Ed25519 key pair from a wallet secret.
// A non-nil nonce yields a one-time (masked) key; nil yields the reusable key.
// The seed is bound to the wallet via BLAKE3("tokenwallet-keygen" || secret || nonce).
func DeriveKey(secret, nonce []byte) ed25519.PrivateKey {
	h := blake3.New()
	h.Write([]byte("tokenwallet-keygen"))
	h.Write(secret)
	if nonce != nil {
		h.Write(nonce)
	}

	var seed [ed25519.SeedSize]byte
	h.Sum(seed[:0])

	return ed25519.NewKeyFromSeed(seed[:])
}

// ForSecret derives the predicate implied by a secret: masked when a nonce is
// supplied, unmasked otherwise. The binder (salt for unmasked, nonce for masked)
// must match the one the sender used to derive the declared recipient address.
func ForSecret(secret, nonce, salt []byte) (Predicate, ed25519.PrivateKey) {
	key := DeriveKey(secret, nonce)
	pub := key.Public().(ed25519.PublicKey)

	if nonce != nil {
		return Masked{Key: pub, Nonce: nonce}, key
	}

	return Unmasked{Key: pub, Salt: salt}, key
}

// wire is the tagged serialized form shared by JSON and CBOR.
type wire struct {
	Kind      string `json:"kind" cbor:"1,keyasint"`
	PublicKey []byte `json:"publicKey" cbor:"2,keyasint"`
	Binder    []byte `json:"binder" cbor:"3,keyasint"`
}

// Marshal encodes a predicate into its tagged JSON form.
func Marshal(p Predicate) ([]byte, error) {
	return json.Marshal(toWire(p))
}

// Unmarshal decodes a predicate from its tagged JSON form.
func Unmarshal(data []byte) (Predicate, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode predicate:\n%w", err)
	}

	return fromWire(w)
}

// Fingerprint returns a stable imprint of the predicate, used in state hashing.
func Fingerprint(p Predicate) hash.Imprint {
	w := toWire(p)

	return hash.Keyed("tokenwallet-predicate", []byte(w.Kind), w.PublicKey, w.Binder)
}

// toWire converts a predicate to its tagged form.
func toWire(p Predicate) wire {
	switch v := p.(type) {
	case Masked:
		return wire{Kind: KindMasked, PublicKey: v.Key, Binder: v.Nonce}
	case Unmasked:
		return wire{Kind: KindUnmasked, PublicKey: v.Key, Binder: v.Salt}
	default:
		return wire{}
	}
}

// fromWire converts a tagged form back to a predicate.
func fromWire(w wire) (Predicate, error) {
	if len(w.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid predicate public key size: %d", len(w.PublicKey))
	}

	switch w.Kind {
	case KindMasked:
		return Masked{Key: w.PublicKey, Nonce: w.Binder}, nil
	case KindUnmasked:
		return Unmasked{Key: w.PublicKey, Salt: w.Binder}, nil
	default:
		return nil, fmt.Errorf("unknown predicate kind: %q", w.Kind)
	}
}
