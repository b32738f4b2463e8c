package security

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedSecret is returned when a stored signing secret cannot be opened.
var ErrSealedSecret = errors.New("sealed signing secret is corrupt or was sealed with another key")

// SecretSealer protects signing secrets at rest. ad binds a sealed secret to its credential id.
type SecretSealer interface {
	Seal(secret, ad []byte) ([]byte, error)
	Open(sealed, ad []byte) ([]byte, error)
}

// NewSealer returns an XChaCha20-Poly1305 sealer for a 32-byte key, or a pass-through sealer
// when key is empty.
func NewSealer(key []byte) (SecretSealer, error) {
	if len(key) == 0 {
		return PlainSealer{}, nil
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &aeadSealer{aead: aead}, nil
}

// PlainSealer stores secrets unchanged.
type PlainSealer struct{}

func (PlainSealer) Seal(secret, _ []byte) ([]byte, error) { return secret, nil }
func (PlainSealer) Open(sealed, _ []byte) ([]byte, error) { return sealed, nil }

type aeadSealer struct {
	aead cipher.AEAD
}

// Seal returns nonce || ciphertext.
func (s *aeadSealer) Seal(secret, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(secret)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, secret, ad), nil
}

func (s *aeadSealer) Open(sealed, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrSealedSecret
	}
	out, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], ad)
	if err != nil {
		return nil, ErrSealedSecret
	}
	return out, nil
}
