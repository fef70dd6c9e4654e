package noise

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrNonceExhausted = errors.New("noise: nonce exhausted")

// CipherState seals or opens one direction of a transport-mode connection.
// The 96-bit nonce is four zero bytes followed by a little-endian counter.
type CipherState struct {
	aead  cipher.AEAD
	n     uint64
	nonce [chacha20poly1305.NonceSize]byte
}

func newCipherState(key []byte) (*CipherState, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &CipherState{aead: aead}, nil
}

func (c *CipherState) next() ([]byte, error) {
	if c.n == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	binary.LittleEndian.PutUint64(c.nonce[4:], c.n)
	c.n++
	return c.nonce[:], nil
}

func (c *CipherState) Overhead() int {
	return c.aead.Overhead()
}

func (c *CipherState) Seal(dst, plaintext []byte) ([]byte, error) {
	nonce, err := c.next()
	if err != nil {
		return nil, err
	}
	return c.aead.Seal(dst, nonce, plaintext, nil), nil
}

func (c *CipherState) Open(dst, ciphertext []byte) ([]byte, error) {
	nonce, err := c.next()
	if err != nil {
		return nil, err
	}
	return c.aead.Open(dst, nonce, ciphertext, nil)
}

// Nonce is the counter the next Seal or Open will use.
func (c *CipherState) Nonce() uint64 {
	return c.n
}
