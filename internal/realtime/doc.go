// Package realtime implements the connection lifecycle core.
//
// The package has two layers:
//   - Client wraps one physical WebSocket connection: dial, framing, send,
//     close.
//   - Manager drives the connection state machine: authentication handshake,
//     heartbeat, error classification, and fixed-interval reconnection with a
//     capped attempt count.
//
// The Manager owns at most one Client at a time and is the only writer of
// connection state.
package realtime
