package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Box seals and opens small secrets, like retailer passwords, with a
// key derived from a configured passphrase. Sealed values are safe to
// store in config files and the database.
type Box struct {
	key [32]byte
}

func NewBox(secret string) Box {
	return Box{key: sha256.Sum256([]byte(secret))}
}

func (b Box) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	_, err := rand.Read(nonce[:])
	if err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (b Box) Open(sealed string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("sealed value is too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", fmt.Errorf("could not open sealed value, the secret key likely changed")
	}
	return string(plaintext), nil
}
