// Package protocol defines the wire format shared with the streaming server.
//
// Every message in both directions is an Envelope carrying a type drawn from
// a fixed vocabulary. Inbound envelopes decode into a closed set of typed
// payloads; there is no untyped passthrough.
package protocol
