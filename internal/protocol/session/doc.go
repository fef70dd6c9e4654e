// Package session binds a net.Conn to a frame Decoder and Encoder.
//
// A Conn optionally runs the noise handshake before its first standard
// frame, applies per-operation deadlines, and closes itself on any framing
// error. Dial retries with exponential backoff.
package session
