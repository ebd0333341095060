package sandbox

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenInvalid = errors.New("invalid capability token")
	ErrTokenExpired = errors.New("capability token expired")
	ErrTokenUsed    = errors.New("capability token already used")
)

// Token is a capability handed to one worker. only the bcrypt hash of the
// secret is kept by the issuer; the worker receives the hash at spawn time
// and the token itself over the RPC connection.
type Token struct {
	ID      string
	Secret  string
	Hash    []byte
	Expires time.Time
}

// String renders the token as sent over the wire, "<id>.<secret>"
func (t Token) String() string {
	return t.ID + "." + t.Secret
}

func splitToken(token string) (id, secret string, ok bool) {
	return strings.Cut(token, ".")
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type issuedToken struct {
	hash    []byte
	expires time.Time
}

// TokenIssuer mints and tracks live capability tokens on the host
type TokenIssuer struct {
	// Cost is the bcrypt cost of new tokens
	Cost int

	mu   sync.Mutex
	live map[string]issuedToken
	now  func() time.Time
}

func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{
		Cost: bcrypt.DefaultCost,
		live: make(map[string]issuedToken),
		now:  time.Now,
	}
}

// Issue mints a token valid for ttl
func (ti *TokenIssuer) Issue(ttl time.Duration) (Token, error) {
	id, err := randomHex(8)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	secret, err := randomHex(32)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), ti.Cost)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}

	tok := Token{ID: id, Secret: secret, Hash: hash, Expires: ti.now().Add(ttl)}
	ti.mu.Lock()
	ti.live[id] = issuedToken{hash: hash, expires: tok.Expires}
	ti.mu.Unlock()
	return tok, nil
}

// Check reports whether token is live
func (ti *TokenIssuer) Check(token string) error {
	id, secret, ok := splitToken(token)
	if !ok {
		return ErrTokenInvalid
	}
	ti.mu.Lock()
	entry, ok := ti.live[id]
	ti.mu.Unlock()
	if !ok {
		return ErrTokenInvalid
	}
	if ti.now().After(entry.expires) {
		return ErrTokenExpired
	}
	if bcrypt.CompareHashAndPassword(entry.hash, []byte(secret)) != nil {
		return ErrTokenInvalid
	}
	return nil
}

// Revoke ends the token's life
func (ti *TokenIssuer) Revoke(token string) {
	id, _, _ := splitToken(token)
	ti.mu.Lock()
	delete(ti.live, id)
	ti.mu.Unlock()
}

// Live returns the number of unrevoked tokens
func (ti *TokenIssuer) Live() int {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return len(ti.live)
}

// Verifier checks the single token a worker will accept
type Verifier struct {
	mu   sync.Mutex
	hash []byte
	used bool
}

func NewVerifier(hash []byte) *Verifier {
	return &Verifier{hash: hash}
}

// Redeem accepts token once
func (v *Verifier) Redeem(token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.used {
		return ErrTokenUsed
	}
	_, secret, ok := splitToken(token)
	if !ok || len(v.hash) == 0 {
		return ErrTokenInvalid
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(secret)) != nil {
		return ErrTokenInvalid
	}
	v.used = true
	return nil
}
