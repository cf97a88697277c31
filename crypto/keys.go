package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ed25519"
	"lukechampine.com/blake3"
)

const (
	// SignatureSize is the length of a detached signature.
	SignatureSize = ed25519.SignatureSize
	// SeedSize is the length of the private seed a key pair derives from.
	SeedSize = ed25519.SeedSize
	// HashSize is the length of every ledger digest.
	HashSize = 32
	// NonceSize is the length of operation nonces.
	NonceSize = 32
)

// KeyPair is a signing identity together with its address.
type KeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
	address string
}

// GenerateKeyPair creates a fresh identity addressed under prefix.
func GenerateKeyPair(prefix string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newKeyPair(pub, priv, prefix)
}

// KeyPairFromSeed deterministically derives an identity from a 32-byte seed.
func KeyPairFromSeed(seed []byte, prefix string) (*KeyPair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newKeyPair(priv.Public().(ed25519.PublicKey), priv, prefix)
}

func newKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey, prefix string) (*KeyPair, error) {
	addr, err := BufferToAddress(pub, prefix)
	if err != nil {
		return nil, err
	}
	return &KeyPair{public: pub, private: priv, address: addr}, nil
}

func (k *KeyPair) Address() string {
	return k.address
}

// PublicKey returns a copy of the raw public key.
func (k *KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.public...)
}

// Seed returns a copy of the private seed.
func (k *KeyPair) Seed() []byte {
	return append([]byte(nil), k.private.Seed()...)
}

// Sign signs message with the private key.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Verify checks sig over message. Malformed keys or signatures yield false
// rather than a panic since both come from untrusted log entries.
func Verify(pub, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// Hash is the single digest used for operation messages, validator messages
// and validity tokens.
func Hash(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// NewNonce returns NonceSize random bytes.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	return nonce, nil
}
