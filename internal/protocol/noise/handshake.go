package noise

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	KeyLen = curve25519.PointSize
	TagLen = chacha20poly1305.Overhead
	// InitiatorMsgLen is the size of the first handshake frame.
	InitiatorMsgLen = KeyLen
	// ResponderMsgLen is the size of the second handshake frame.
	ResponderMsgLen = KeyLen + TagLen

	kdfInfo = "sv2wire noise v1"
)

var (
	ErrBadMessage   = errors.New("noise: malformed handshake message")
	ErrConfirmation = errors.New("noise: responder confirmation failed")
)

// Keys is the transport state produced by a completed handshake.
type Keys struct {
	Send *CipherState
	Recv *CipherState
}

type keypair struct {
	priv [KeyLen]byte
	pub  []byte
}

func newKeypair(r io.Reader) (keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	var kp keypair
	if _, err := io.ReadFull(r, kp.priv[:]); err != nil {
		return keypair{}, fmt.Errorf("noise: ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return keypair{}, fmt.Errorf("noise: ephemeral key: %w", err)
	}
	kp.pub = pub
	return kp, nil
}

type derived struct {
	initToResp []byte
	respToInit []byte
	confirm    []byte
}

func derive(kp keypair, peer, initPub, respPub []byte) (derived, error) {
	shared, err := curve25519.X25519(kp.priv[:], peer)
	if err != nil {
		return derived{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	salt := make([]byte, 0, 2*KeyLen)
	salt = append(salt, initPub...)
	salt = append(salt, respPub...)
	kdf := hkdf.New(sha256.New, shared, salt, []byte(kdfInfo))
	out := make([]byte, 3*chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return derived{}, err
	}
	ks := chacha20poly1305.KeySize
	return derived{
		initToResp: out[:ks],
		respToInit: out[ks : 2*ks],
		confirm:    out[2*ks:],
	}, nil
}

func confirmTag(key, respPub []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	return aead.Seal(nil, nonce[:], nil, respPub), nil
}

func keys(send, recv []byte) (Keys, error) {
	s, err := newCipherState(send)
	if err != nil {
		return Keys{}, err
	}
	r, err := newCipherState(recv)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Send: s, Recv: r}, nil
}

// Initiator is the connecting side.
type Initiator struct {
	kp keypair
}

// NewInitiator draws an ephemeral key from r (crypto/rand when nil).
func NewInitiator(r io.Reader) (*Initiator, error) {
	kp, err := newKeypair(r)
	if err != nil {
		return nil, err
	}
	return &Initiator{kp: kp}, nil
}

// Hello is the first handshake frame.
func (i *Initiator) Hello() *frame.HandshakeFrame {
	return frame.NewHandshakeFrame(append([]byte(nil), i.kp.pub...))
}

// Finish checks the responder's reply and returns transport keys.
func (i *Initiator) Finish(reply []byte) (Keys, error) {
	if len(reply) != ResponderMsgLen {
		return Keys{}, fmt.Errorf("%w: reply length %d", ErrBadMessage, len(reply))
	}
	respPub, tag := reply[:KeyLen], reply[KeyLen:]
	d, err := derive(i.kp, respPub, i.kp.pub, respPub)
	if err != nil {
		return Keys{}, err
	}
	want, err := confirmTag(d.confirm, respPub)
	if err != nil {
		return Keys{}, err
	}
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		return Keys{}, ErrConfirmation
	}
	return keys(d.initToResp, d.respToInit)
}

// Responder is the accepting side.
type Responder struct {
	kp keypair
}

func NewResponder(r io.Reader) (*Responder, error) {
	kp, err := newKeypair(r)
	if err != nil {
		return nil, err
	}
	return &Responder{kp: kp}, nil
}

// Accept consumes the initiator's hello and returns the reply frame along
// with transport keys.
func (r *Responder) Accept(hello []byte) (*frame.HandshakeFrame, Keys, error) {
	if len(hello) != InitiatorMsgLen {
		return nil, Keys{}, fmt.Errorf("%w: hello length %d", ErrBadMessage, len(hello))
	}
	initPub := append([]byte(nil), hello...)
	d, err := derive(r.kp, initPub, initPub, r.kp.pub)
	if err != nil {
		return nil, Keys{}, err
	}
	tag, err := confirmTag(d.confirm, r.kp.pub)
	if err != nil {
		return nil, Keys{}, err
	}
	k, err := keys(d.respToInit, d.initToResp)
	if err != nil {
		return nil, Keys{}, err
	}
	reply := make([]byte, 0, ResponderMsgLen)
	reply = append(reply, r.kp.pub...)
	reply = append(reply, tag...)
	return frame.NewHandshakeFrame(reply), k, nil
}
