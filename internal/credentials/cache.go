// Package credentials mirrors OAuth credentials maintained by an external
// rotation process.
//
// DESIGN: Two backing documents are read, never written:
//   - the credentials file: {"claudeAiOauth": {"accessToken", "expiresAt", ...}}
//     (a bare top-level accessToken is also accepted)
//   - the identity file: {"userID": ..., "oauthAccount": {"accountUuid": ...}}
//
// Loaded credentials are cached as an immutable snapshot behind an atomic
// pointer with a fixed TTL. Concurrent Get/Invalidate calls may race into a
// duplicate reload; that is benign because each reload stores a complete new
// snapshot, never a partially written one.
package credentials

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/fstlabs/claude-gateway/internal/config"
	"github.com/fstlabs/claude-gateway/internal/utils"
)

// Placeholder identity values used when the identity document is absent.
// Callers always receive identity fields alongside a token.
const (
	PlaceholderUserID      = "anonymous"
	PlaceholderAccountUUID = "default"
)

// Credential is an opaque bearer token plus the identity fields needed to
// compose upstream request metadata.
type Credential struct {
	AccessToken string
	UserID      string
	AccountUUID string
	ExpiresAt   time.Time // zero when the document carries no expiry
}

// Expired reports whether the token is past (or within buffer of) its expiry.
// Tokens without expiry information never report expired.
func (c *Credential) Expired(now time.Time, buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt.Add(-buffer))
}

type snapshot struct {
	cred       Credential
	capturedAt time.Time
}

// Cache serves credentials from the backing documents with TTL caching.
type Cache struct {
	tokenPath    string
	identityPath string
	ttl          time.Duration

	current atomic.Pointer[snapshot]

	// onReload, when set, is called after each successful re-read from source.
	onReload func()

	// now is swappable for tests.
	now func() time.Time
}

// NewCache creates a credential cache over the two backing documents.
func NewCache(tokenPath, identityPath string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = config.DefaultCredentialTTL
	}
	return &Cache{
		tokenPath:    tokenPath,
		identityPath: identityPath,
		ttl:          ttl,
		now:          time.Now,
	}
}

// Get returns the active credential. With force=false a fresh-enough cached
// credential is served without touching disk; otherwise the backing documents
// are re-read. When a re-read fails, the previous credential is served
// stale-but-present; ok=false only when there has never been a successful load.
func (c *Cache) Get(force bool) (*Credential, bool) {
	now := c.now()

	if !force {
		if snap := c.current.Load(); snap != nil {
			fresh := now.Sub(snap.capturedAt) < c.ttl
			if fresh && !snap.cred.Expired(now, config.TokenExpiryBuffer) {
				cred := snap.cred
				return &cred, true
			}
		}
	}

	cred, ok := c.load(now)
	if ok {
		c.current.Store(&snapshot{cred: *cred, capturedAt: now})
		if c.onReload != nil {
			c.onReload()
		}
		return cred, true
	}

	// Reload failed: fall back to whatever we had, even if stale. The
	// external rotation process owns recovery.
	if snap := c.current.Load(); snap != nil {
		stale := snap.cred
		return &stale, true
	}
	return nil, false
}

// OnReload registers a callback fired after each successful source re-read.
// Set once during wiring, before concurrent Gets begin.
func (c *Cache) OnReload(fn func()) { c.onReload = fn }

// Invalidate discards the cached credential so the next Get re-reads from
// source. It does not itself perform the re-read.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
	log.Info().Msg("credentials: cache invalidated")
}

// load assembles a credential from the backing documents.
func (c *Cache) load(now time.Time) (*Credential, bool) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", c.tokenPath).Msg("credentials: token document not found")
		} else {
			log.Error().Err(err).Str("path", c.tokenPath).Msg("credentials: token read failed")
		}
		return nil, false
	}
	if !gjson.ValidBytes(data) {
		log.Error().Str("path", c.tokenPath).Msg("credentials: malformed token document")
		return nil, false
	}

	doc := gjson.ParseBytes(data)
	oauth := doc.Get("claudeAiOauth")
	if !oauth.Exists() {
		oauth = doc
	}

	token := oauth.Get("accessToken").String()
	if token == "" {
		log.Warn().Str("path", c.tokenPath).Msg("credentials: no access token in document")
		return nil, false
	}

	cred := &Credential{
		AccessToken: token,
		ExpiresAt:   parseExpiry(oauth.Get("expiresAt")),
	}

	cred.UserID, cred.AccountUUID = c.loadIdentity(oauth)

	if cred.Expired(now, 0) {
		// Served anyway: rotation is external and the upstream will reject
		// if the replacement really has not landed yet.
		log.Warn().
			Time("expires_at", cred.ExpiresAt).
			Msg("credentials: loaded token is past expiry, awaiting external rotation")
	}

	log.Info().
		Str("token", utils.MaskKey(cred.AccessToken)).
		Str("account_uuid", cred.AccountUUID).
		Msg("credentials: loaded")
	return cred, true
}

// loadIdentity reads user/account identifiers from the identity document,
// falling back to the token document, then to placeholders.
func (c *Cache) loadIdentity(oauth gjson.Result) (userID, accountUUID string) {
	if data, err := os.ReadFile(c.identityPath); err == nil && gjson.ValidBytes(data) {
		doc := gjson.ParseBytes(data)
		userID = doc.Get("userID").String()
		accountUUID = doc.Get("oauthAccount.accountUuid").String()
	}

	if userID == "" {
		userID = oauth.Get("userId").String()
	}
	if accountUUID == "" {
		accountUUID = oauth.Get("accountUuid").String()
	}

	if userID == "" {
		userID = PlaceholderUserID
	}
	if accountUUID == "" {
		accountUUID = PlaceholderAccountUUID
	}
	return userID, accountUUID
}

// parseExpiry converts an expiresAt value to a time. The rotation process
// writes epoch milliseconds; epoch seconds are accepted for older documents.
func parseExpiry(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	n := v.Int()
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
