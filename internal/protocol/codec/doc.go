// Package codec turns byte streams into frames and frames into bytes.
//
// Ownership boundary:
// - incremental Decoder (header phase, payload phase, handshake mode)
// - Encoder with a reusable pool-backed scratch buffer
// - Cipher hook for transport mode; the handshake lives elsewhere
//
// Decoder and Encoder are per-connection and not safe for concurrent use.
// Neither blocks: callers own all socket I/O.
package codec
