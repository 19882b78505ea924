// Package session provides read-only access to the credential token used by
// the realtime authentication handshake.
package session

import (
	"os"
	"strings"
)

// TokenSource yields the current credential token. An empty string means no
// credentials are available.
type TokenSource interface {
	Token() string
}

// Static wraps a fixed token value.
type Static string

// Token returns the wrapped value.
func (s Static) Token() string { return string(s) }

// Env reads the token from an environment variable on every call, so rotated
// credentials are picked up by the next connect.
type Env string

// Token returns the variable's current value.
func (e Env) Token() string { return strings.TrimSpace(os.Getenv(string(e))) }

// File reads the token from a file on every call.
type File string

// Token returns the trimmed file contents, or empty if the file is unreadable.
func (f File) Token() string {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// FromSettings picks a source by precedence: explicit token, then env var
// name, then file path. With none set it returns a source with no token.
func FromSettings(token, envName, path string) TokenSource {
	switch {
	case token != "":
		return Static(token)
	case envName != "":
		return Env(envName)
	case path != "":
		return File(path)
	}
	return Static("")
}
