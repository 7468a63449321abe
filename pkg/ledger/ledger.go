// Package ledger manages the lifecycle of the three local token families:
// authorization codes, access tokens, and refresh tokens. The in-memory maps
// are the source of truth; the snapshot store holds a crash-recovery copy
// written on a debounce so bursts of mutation coalesce into one write.
package ledger

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
	"github.com/veslink/calendar-mcp/pkg/types"
)

// Token family TTLs.
const (
	AuthCodeTTL     = 10 * time.Minute
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

const (
	tokenBytes    = 32
	sweepInterval = 5 * time.Minute
	flushDelay    = 500 * time.Millisecond
)

// Ledger holds the three token maps, each keyed by the token string.
type Ledger struct {
	mu            sync.Mutex
	authCodes     map[string]*types.AuthCode
	accessTokens  map[string]*types.AccessToken
	refreshTokens map[string]*types.RefreshToken

	snap snapshot.Store
	gen  random.Generator

	flushTimer *time.Timer
	stopSweep  chan struct{}
	sweepOnce  sync.Once
}

// record is the persisted shape: the tokens document is one flat JSON object
// keyed by token string, with kind discriminating the family.
type record struct {
	Kind          string    `json:"kind"`
	ClientID      string    `json:"client_id"`
	Scopes        []string  `json:"scopes,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	CodeChallenge string    `json:"code_challenge,omitempty"`
	RedirectURI   string    `json:"redirect_uri,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
}

const (
	kindAuthCode     = "authorization_code"
	kindAccessToken  = "access_token"
	kindRefreshToken = "refresh_token"
)

// New loads the persisted ledger and immediately sweeps anything that expired
// while the process was down. A load failure is not fatal: the ledger starts
// empty and a warning is logged.
func New(snap snapshot.Store, gen random.Generator) *Ledger {
	l := &Ledger{
		authCodes:     make(map[string]*types.AuthCode),
		accessTokens:  make(map[string]*types.AccessToken),
		refreshTokens: make(map[string]*types.RefreshToken),
		snap:          snap,
		gen:           gen,
		stopSweep:     make(chan struct{}),
	}

	l.load()

	l.mu.Lock()
	l.sweepLocked()
	l.mu.Unlock()

	return l
}

// Start begins the periodic expiry sweep. Close stops it.
func (l *Ledger) Start() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopSweep:
				return
			case <-ticker.C:
				l.mu.Lock()
				if l.sweepLocked() {
					l.scheduleFlushLocked()
				}
				l.mu.Unlock()
			}
		}
	}()
}

// Close cancels the sweep and the pending persistence debounce. If a flush
// was still pending it is attempted once, synchronously.
func (l *Ledger) Close() error {
	l.sweepOnce.Do(func() { close(l.stopSweep) })

	l.mu.Lock()
	pending := l.flushTimer != nil && l.flushTimer.Stop()
	l.flushTimer = nil
	if pending {
		l.persistLocked()
	}
	l.mu.Unlock()
	return nil
}

// CreateAuthCode mints a prefixed single-use authorization code bound to the
// client and the originating session's PKCE challenge and redirect URI.
func (l *Ledger) CreateAuthCode(clientID, codeChallenge, redirectURI, sessionID string) *types.AuthCode {
	l.mu.Lock()
	defer l.mu.Unlock()

	code := &types.AuthCode{
		Code:          l.gen.Token(random.PrefixAuthCode, tokenBytes),
		ClientID:      clientID,
		CodeChallenge: codeChallenge,
		RedirectURI:   redirectURI,
		SessionID:     sessionID,
		ExpiresAt:     time.Now().Add(AuthCodeTTL),
	}
	l.authCodes[code.Code] = code
	l.scheduleFlushLocked()
	return code
}

// GetAuthCode returns the unconsumed code. An expired record is evicted and
// reported absent; a lookup never returns a stale record.
func (l *Ledger) GetAuthCode(code string) (*types.AuthCode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.authCodes[code]
	if !ok {
		return nil, false
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(l.authCodes, code)
		l.scheduleFlushLocked()
		return nil, false
	}
	return rec, true
}

// ConsumeAuthCode removes and returns the code in one step under the ledger
// lock, so at most one caller can ever succeed for a given code.
func (l *Ledger) ConsumeAuthCode(code string) (*types.AuthCode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.authCodes[code]
	if !ok {
		return nil, false
	}
	delete(l.authCodes, code)
	l.scheduleFlushLocked()
	if time.Now().After(rec.ExpiresAt) {
		return nil, false
	}
	return rec, true
}

// CreateAccessToken mints a prefixed bearer token. refreshToken, when set,
// back-references the refresh token the access token was derived from.
func (l *Ledger) CreateAccessToken(clientID string, scopes []string, refreshToken string) *types.AccessToken {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok := &types.AccessToken{
		Token:        l.gen.Token(random.PrefixAccessToken, tokenBytes),
		ClientID:     clientID,
		Scopes:       scopes,
		ExpiresAt:    time.Now().Add(AccessTokenTTL),
		RefreshToken: refreshToken,
	}
	l.accessTokens[tok.Token] = tok
	l.scheduleFlushLocked()
	return tok
}

// GetAccessToken returns the live token, evicting it if expired.
func (l *Ledger) GetAccessToken(token string) (*types.AccessToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.accessTokens[token]
	if !ok {
		return nil, false
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(l.accessTokens, token)
		l.scheduleFlushLocked()
		return nil, false
	}
	return rec, true
}

// RevokeAccessToken deletes the token. Revoking an unknown token is a no-op.
func (l *Ledger) RevokeAccessToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accessTokens[token]; ok {
		delete(l.accessTokens, token)
		l.scheduleFlushLocked()
	}
}

// CreateRefreshToken mints a prefixed long-lived refresh token.
func (l *Ledger) CreateRefreshToken(clientID string, scopes []string) *types.RefreshToken {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok := &types.RefreshToken{
		Token:     l.gen.Token(random.PrefixRefreshToken, tokenBytes),
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}
	l.refreshTokens[tok.Token] = tok
	l.scheduleFlushLocked()
	return tok
}

// GetRefreshToken returns the live token, evicting it if expired.
func (l *Ledger) GetRefreshToken(token string) (*types.RefreshToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.refreshTokens[token]
	if !ok {
		return nil, false
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(l.refreshTokens, token)
		l.scheduleFlushLocked()
		return nil, false
	}
	return rec, true
}

// RevokeRefreshToken deletes only the refresh token record itself.
func (l *Ledger) RevokeRefreshToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.refreshTokens[token]; ok {
		delete(l.refreshTokens, token)
		l.scheduleFlushLocked()
	}
}

// RevokeTokensByRefreshToken deletes the refresh token and every access token
// whose back-reference names it, in one sweep under the ledger lock. A
// concurrent verify can never observe a half-revoked state.
func (l *Ledger) RevokeTokensByRefreshToken(refreshToken string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	if _, ok := l.refreshTokens[refreshToken]; ok {
		delete(l.refreshTokens, refreshToken)
		changed = true
	}
	for token, rec := range l.accessTokens {
		if rec.RefreshToken == refreshToken {
			delete(l.accessTokens, token)
			changed = true
		}
	}
	if changed {
		l.scheduleFlushLocked()
	}
}

// sweepLocked evicts every expired record and reports whether anything
// changed. Callers hold l.mu.
func (l *Ledger) sweepLocked() bool {
	now := time.Now()
	changed := false
	for code, rec := range l.authCodes {
		if now.After(rec.ExpiresAt) {
			delete(l.authCodes, code)
			changed = true
		}
	}
	for token, rec := range l.accessTokens {
		if now.After(rec.ExpiresAt) {
			delete(l.accessTokens, token)
			changed = true
		}
	}
	for token, rec := range l.refreshTokens {
		if now.After(rec.ExpiresAt) {
			delete(l.refreshTokens, token)
			changed = true
		}
	}
	return changed
}

// scheduleFlushLocked arms the persistence debounce. Mutations within the
// quiet period coalesce into the single pending write. Callers hold l.mu.
func (l *Ledger) scheduleFlushLocked() {
	if l.flushTimer != nil {
		return
	}
	l.flushTimer = time.AfterFunc(flushDelay, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.flushTimer = nil
		l.persistLocked()
	})
}

// persistLocked writes the full ledger. A write failure is logged; in-memory
// state stays authoritative until the next successful flush.
func (l *Ledger) persistLocked() {
	records := make(map[string]*record, len(l.authCodes)+len(l.accessTokens)+len(l.refreshTokens))
	for code, rec := range l.authCodes {
		records[code] = &record{
			Kind:          kindAuthCode,
			ClientID:      rec.ClientID,
			ExpiresAt:     rec.ExpiresAt,
			CodeChallenge: rec.CodeChallenge,
			RedirectURI:   rec.RedirectURI,
			SessionID:     rec.SessionID,
		}
	}
	for token, rec := range l.accessTokens {
		records[token] = &record{
			Kind:         kindAccessToken,
			ClientID:     rec.ClientID,
			Scopes:       rec.Scopes,
			ExpiresAt:    rec.ExpiresAt,
			RefreshToken: rec.RefreshToken,
		}
	}
	for token, rec := range l.refreshTokens {
		records[token] = &record{
			Kind:      kindRefreshToken,
			ClientID:  rec.ClientID,
			Scopes:    rec.Scopes,
			ExpiresAt: rec.ExpiresAt,
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		log.Printf("Warning: failed to encode token ledger: %v", err)
		return
	}
	if err := l.snap.Save(data); err != nil {
		log.Printf("Warning: failed to persist token ledger: %v", err)
	}
}

func (l *Ledger) load() {
	data, err := l.snap.Load()
	if err != nil {
		log.Printf("Warning: failed to load token ledger, starting empty: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var records map[string]*record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("Warning: failed to parse token ledger, starting empty: %v", err)
		return
	}

	for token, rec := range records {
		switch rec.Kind {
		case kindAuthCode:
			l.authCodes[token] = &types.AuthCode{
				Code:          token,
				ClientID:      rec.ClientID,
				CodeChallenge: rec.CodeChallenge,
				RedirectURI:   rec.RedirectURI,
				SessionID:     rec.SessionID,
				ExpiresAt:     rec.ExpiresAt,
			}
		case kindAccessToken:
			l.accessTokens[token] = &types.AccessToken{
				Token:        token,
				ClientID:     rec.ClientID,
				Scopes:       rec.Scopes,
				ExpiresAt:    rec.ExpiresAt,
				RefreshToken: rec.RefreshToken,
			}
		case kindRefreshToken:
			l.refreshTokens[token] = &types.RefreshToken{
				Token:     token,
				ClientID:  rec.ClientID,
				Scopes:    rec.Scopes,
				ExpiresAt: rec.ExpiresAt,
			}
		default:
			log.Printf("Warning: skipping unknown token record kind %q", rec.Kind)
		}
	}
}
