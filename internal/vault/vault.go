// Package vault implements the per-case mapping between raw sensitive values
// and their placeholder tokens. A vault is scoped to exactly one case and
// carries its own random salt, so two cases never produce the same token for
// the same raw value and placeholders cannot be correlated across cases.
package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sarforge/internal/catalog"
)

// ErrUnsupportedCategory is returned when a token is requested for a
// category outside the fixed enumeration. This is a configuration or
// programmer error and is never papered over with a generic category.
var ErrUnsupportedCategory = errors.New("unsupported sensitive category")

const (
	saltSize          = 32
	defaultHashLength = 6
)

// Entry is one raw↔token pair held by a vault.
type Entry struct {
	Token    string           `json:"token"`
	Category catalog.Category `json:"category"`
	Raw      string           `json:"raw"`
}

// Vault maps normalized raw values to stable placeholder tokens and back.
// All operations are safe for concurrent use, though a single case is
// normally redacted from one goroutine at a time.
type Vault struct {
	caseID     string
	salt       []byte
	hashLength int

	mu      sync.Mutex
	forward map[string]string // category+raw -> token
	reverse map[string]Entry  // token -> entry
}

// Option customizes vault construction.
type Option func(*Vault)

// WithSalt fixes the per-case salt. Intended for reopening a persisted vault
// and for deterministic tests; production cases get a fresh random salt.
func WithSalt(salt []byte) Option {
	return func(v *Vault) {
		v.salt = append([]byte(nil), salt...)
	}
}

// WithHashLength sets the truncated hash width of minted tokens.
func WithHashLength(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.hashLength = n
		}
	}
}

// New creates an empty vault for one case with a fresh random salt.
func New(caseID string, opts ...Option) (*Vault, error) {
	v := &Vault{
		caseID:     caseID,
		hashLength: defaultHashLength,
		forward:    map[string]string{},
		reverse:    map[string]Entry{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.salt) == 0 {
		v.salt = make([]byte, saltSize)
		if _, err := rand.Read(v.salt); err != nil {
			return nil, fmt.Errorf("generate vault salt: %w", err)
		}
	}
	return v, nil
}

// CaseID returns the case this vault belongs to.
func (v *Vault) CaseID() string { return v.caseID }

func forwardKey(cat catalog.Category, raw string) string {
	return string(cat) + "\x00" + raw
}

// TokenFor returns the stable token for a normalized raw value, minting one
// on first sight. The token is an HMAC-SHA256 of (category, raw) keyed by
// the per-case salt, truncated to the configured width; deriving the raw
// value back requires this vault, not just the token.
func (v *Vault) TokenFor(raw string, cat catalog.Category) (string, error) {
	if !cat.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCategory, cat)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := forwardKey(cat, raw)
	if token, ok := v.forward[key]; ok {
		return token, nil
	}

	digest := v.digest(cat, raw)
	width := v.hashLength
	var token string
	for {
		if width > len(digest) {
			width = len(digest)
		}
		token = fmt.Sprintf("[%s:%s]", cat, digest[:width])
		existing, taken := v.reverse[token]
		if !taken {
			break
		}
		if existing.Category == cat && existing.Raw == raw {
			break
		}
		if width == len(digest) {
			// Full-width HMAC collision between distinct values.
			return "", fmt.Errorf("token collision for category %s in case %s", cat, v.caseID)
		}
		// Truncation collision with a distinct value: widen the hash
		// for the newcomer so tokens stay collision-free in-case.
		width++
	}

	v.forward[key] = token
	v.reverse[token] = Entry{Token: token, Category: cat, Raw: raw}
	return token, nil
}

func (v *Vault) digest(cat catalog.Category, raw string) string {
	mac := hmac.New(sha256.New, v.salt)
	mac.Write([]byte(cat))
	mac.Write([]byte{0})
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// RawFor performs the reverse lookup. It is only reachable by callers that
// hold the vault itself — the audit and reconciliation path — and is never
// exposed across the trust boundary to the model or the client response.
func (v *Vault) RawFor(token string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.reverse[token]
	if !ok {
		return "", false
	}
	return entry.Raw, true
}

// HasToken reports whether the vault issued the given token.
func (v *Vault) HasToken(token string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.reverse[token]
	return ok
}

// Len returns the number of distinct raw values mapped.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.forward)
}

// Entries returns all pairs sorted by token. The result is a snapshot; the
// caller owns it.
func (v *Vault) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	entries := make([]Entry, 0, len(v.reverse))
	for _, e := range v.reverse {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Token < entries[j].Token })
	return entries
}
