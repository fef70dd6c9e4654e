// Package noise is the handshake collaborator that moves a connection into
// transport mode.
//
// The initiator sends its ephemeral X25519 key in a 32-byte handshake frame.
// The responder answers with its own ephemeral key and a 16-byte
// confirmation tag (48 bytes). Both sides derive directional
// ChaCha20-Poly1305 keys with HKDF-SHA256, salted with both public keys.
// The resulting CipherStates plug into the codec as its transport Cipher.
package noise
