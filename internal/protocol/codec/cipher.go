package codec

import "errors"

var (
	ErrMidFrame  = errors.New("codec: mode change in the middle of a frame")
	ErrDecrypt   = errors.New("codec: decrypt failed")
	ErrEncrypt   = errors.New("codec: encrypt failed")
	ErrNilFrame  = errors.New("codec: nil frame")
	ErrBadLength = errors.New("codec: invalid handshake length")
)

// Cipher is the transport-mode transform. Each call consumes one nonce, so
// header and payload must be sealed and opened in the same order on both
// ends. Seal and Open must support in-place operation (dst = src[:0]).
type Cipher interface {
	Seal(dst, plaintext []byte) ([]byte, error)
	Open(dst, ciphertext []byte) ([]byte, error)
	Overhead() int
}

func overhead(c Cipher) int {
	if c == nil {
		return 0
	}
	return c.Overhead()
}

// sealedLen is the wire size of n plaintext bytes. Empty payloads are sent
// without a tag.
func sealedLen(c Cipher, n int) int {
	if n == 0 {
		return 0
	}
	return n + overhead(c)
}
