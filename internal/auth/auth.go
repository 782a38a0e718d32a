// Package auth implements the SASL provider contract used during
// client registration: advertising mechanisms, starting an
// authentication attempt, and feeding it challenge responses until it
// resolves to an account name or fails.
//
// Grounded on original_source/src/auth.rs's Provider trait
// (is_available/write_mechanisms/start_auth/next_challenge), with the
// concrete PLAIN wiring taken from delthas-soju/downstream.go's use of
// github.com/emersion/go-sasl's PlainServer.
package auth

import (
	"errors"

	"github.com/emersion/go-sasl"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnavailable is returned by StartAuth/NextChallenge when the
// backing provider cannot authenticate anyone right now.
var ErrUnavailable = errors.New("auth: provider unavailable")

// ErrInvalidCredentials is returned by NextChallenge when a mechanism
// completes but the supplied credentials don't check out.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Session is an in-progress authentication attempt, keyed by the
// caller (internal/state keeps one per client while AUTHENTICATE is
// underway).
type Session struct {
	server sasl.Server
}

// Provider is a pluggable SASL backend. Exactly one exists per server;
// internal/state asks it for mechanisms during CAP negotiation and
// drives a Session through AUTHENTICATE.
type Provider interface {
	// IsAvailable reports whether this provider can authenticate anyone
	// right now. A provider that is never available (Dummy, or a
	// database provider mid-outage) still satisfies the interface so
	// capability advertisement has something to ask.
	IsAvailable() bool

	// Mechanisms lists the SASL mechanisms this provider supports, for
	// CAP LS sasl=... advertisement.
	Mechanisms() []string

	// StartAuth begins an attempt for the named mechanism. It returns
	// ErrUnavailable if the provider can't run right now or doesn't
	// support the mechanism.
	StartAuth(mechanism string) (*Session, error)
}

// Next feeds one AUTHENTICATE response into the session. It returns
// the next challenge to send (possibly empty, meaning send "+"), and
// the account name once the mechanism reports success. done is false
// until the mechanism has a final answer.
func (s *Session) Next(response []byte) (challenge []byte, account string, done bool, err error) {
	challenge, done, err = s.server.Next(response)
	if err != nil {
		return nil, "", true, err
	}
	if done {
		account = s.server.(interface{ Identity() string }).Identity()
	}
	return challenge, account, done, nil
}

// AccountFinder looks up a bcrypt password hash for an account name.
// cmd/cinderd supplies a concrete implementation backed by a YAML
// credentials file; CredentialStore never talks to storage directly.
type AccountFinder interface {
	// FindAccount returns the bcrypt hash for account, or ok=false if no
	// such account exists.
	FindAccount(account string) (bcryptHash string, ok bool)
}

// CredentialStore is the PLAIN-mechanism Provider backed by an
// AccountFinder and bcrypt password checks.
type CredentialStore struct {
	Accounts AccountFinder
}

// IsAvailable reports whether PLAIN authentication can run: true
// whenever an AccountFinder is set, false without one.
func (c *CredentialStore) IsAvailable() bool {
	return c.Accounts != nil
}

// Mechanisms returns the single "PLAIN" mechanism this store supports.
func (c *CredentialStore) Mechanisms() []string {
	if !c.IsAvailable() {
		return nil
	}
	return []string{"PLAIN"}
}

// StartAuth begins a PLAIN attempt.
func (c *CredentialStore) StartAuth(mechanism string) (*Session, error) {
	if !c.IsAvailable() || mechanism != "PLAIN" {
		return nil, ErrUnavailable
	}

	var identity string
	server := sasl.NewPlainServer(sasl.PlainAuthenticator(func(_, username, password string) error {
		hash, ok := c.Accounts.FindAccount(username)
		if !ok {
			return ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		identity = username
		return nil
	}))

	return &Session{server: &identitySASLServer{Server: server, identity: &identity}}, nil
}

// identitySASLServer wraps a sasl.Server so Session.Next can recover
// the authenticated account name after Next reports done, without
// making every Provider implementation track it separately.
type identitySASLServer struct {
	sasl.Server
	identity *string
}

// Identity returns the account name the last successful Next
// authenticated, if any.
func (s *identitySASLServer) Identity() string {
	return *s.identity
}

// Dummy is the Provider used when no SASL backend is configured,
// grounded on original_source/src/auth.rs's DummyProvider: it never
// advertises a mechanism and every attempt fails outright.
type Dummy struct{}

// IsAvailable always reports false.
func (Dummy) IsAvailable() bool { return false }

// Mechanisms always returns nil.
func (Dummy) Mechanisms() []string { return nil }

// StartAuth always fails.
func (Dummy) StartAuth(string) (*Session, error) {
	return nil, ErrUnavailable
}
