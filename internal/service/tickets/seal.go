package tickets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// sealer encrypts booking references for QR codes so a code cannot be forged
// or pointed at another booking.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret string) (*sealer, error) {
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &sealer{aead: aead}, nil
}

func (s *sealer) Seal(bookingID uuid.UUID) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	out := s.aead.Seal(nonce, nonce, bookingID[:], nil)

	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *sealer) Open(code string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	n := s.aead.NonceSize()
	if len(raw) < n {
		return uuid.Nil, ErrInvalidCode
	}

	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	id, err := uuid.FromBytes(plain)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	return id, nil
}
