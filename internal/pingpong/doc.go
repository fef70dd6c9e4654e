// Package pingpong is a minimal pair of roles that exercises the framing
// stack end to end. The client sends Ping frames carrying a nonce and the
// server answers each with a Pong echoing it.
package pingpong
