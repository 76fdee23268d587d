package web

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"canopy/internal/store"
	"canopy/internal/tree"
)

const (
	sessionCookieName = "canopy_session"
	sessionTTL        = 30 * 24 * time.Hour

	// sessionIdle is how long an unused session stays in memory. Evicted
	// sessions are restored from the store on their next request.
	sessionIdle = 30 * time.Minute
)

type signedPayload struct {
	Exp int64  `json:"exp"`
	Sub string `json:"sub"` // session id
}

func secretKeyPath(stateDir string) string {
	return filepath.Join(stateDir, "web", "secret.key")
}

// loadOrInitSecretKey keeps the cookie signing key next to the database so
// sessions survive restarts. Without a state dir the key lives in memory only.
// When readOnly is set an existing key is used but a missing one is not written.
func loadOrInitSecretKey(stateDir string, readOnly bool) ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	enc := base64.RawURLEncoding.EncodeToString(raw)
	if strings.TrimSpace(stateDir) == "" {
		return []byte(enc), nil
	}

	path := secretKeyPath(stateDir)
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return []byte(strings.TrimSpace(string(b))), nil
	}
	if readOnly {
		return []byte(enc), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(enc+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

func signToken(secret []byte, payload signedPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(b)
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(p))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return p + "." + sig, nil
}

func verifyToken(secret []byte, token string) (signedPayload, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return signedPayload{}, errors.New("invalid token format")
	}
	p, sig := parts[0], parts[1]

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(p))
	want := mac.Sum(nil)
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return signedPayload{}, errors.New("invalid token signature")
	}

	raw, err := base64.RawURLEncoding.DecodeString(p)
	if err != nil {
		return signedPayload{}, errors.New("invalid token payload")
	}
	var sp signedPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return signedPayload{}, errors.New("invalid token payload")
	}
	if sp.Exp == 0 || time.Now().Unix() > sp.Exp {
		return signedPayload{}, errors.New("token expired")
	}
	if strings.TrimSpace(sp.Sub) == "" {
		return signedPayload{}, errors.New("token missing sub")
	}
	return sp, nil
}

// session holds one browser's tree states. mu serializes its request turns.
type session struct {
	id string

	mu    sync.Mutex
	trees map[string]*sessionTree

	// Guarded by the registry's mutex.
	lastUsed time.Time
	streams  int
}

type sessionTree struct {
	state *tree.State
	gen   uint64
}

// sessionRegistry keeps live sessions in memory and evicts those idle for
// longer than idle. Sessions with an open event stream are never evicted.
type sessionRegistry struct {
	idle time.Duration

	mu        sync.Mutex
	now       func() time.Time
	sessions  map[string]*session
	lastSweep time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		idle:     sessionIdle,
		now:      time.Now,
		sessions: map[string]*session{},
	}
}

func (r *sessionRegistry) get(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) >= r.idle/4 {
		r.sweepLocked(now)
	}
	s, ok := r.sessions[id]
	if !ok {
		s = &session{id: id, trees: map[string]*sessionTree{}}
		r.sessions[id] = s
	}
	s.lastUsed = now
	return s
}

// hold pins s in memory until the returned func is called.
func (r *sessionRegistry) hold(s *session) (release func()) {
	r.mu.Lock()
	s.streams++
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		s.streams--
		s.lastUsed = r.now()
		r.mu.Unlock()
	}
}

func (r *sessionRegistry) sweepLocked(now time.Time) {
	r.lastSweep = now
	evicted := 0
	for id, s := range r.sessions {
		if s.streams == 0 && now.Sub(s.lastUsed) > r.idle {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 && glog.V(1) {
		glog.Infof("web: evicted %d idle sessions, %d live", evicted, len(r.sessions))
	}
}

func (r *sessionRegistry) setClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *sessionRegistry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRegistry) forget(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// sessionFor returns the caller's session, issuing a new signed cookie when
// the request carries none or an invalid one.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session, error) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c != nil {
		if sp, err := verifyToken(s.secret, c.Value); err == nil {
			return s.sessions.get(sp.Sub), nil
		}
	}
	id := ulid.Make().String()
	tok, err := signToken(s.secret, signedPayload{Sub: id, Exp: time.Now().Add(sessionTTL).Unix()})
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.sessions.get(id), nil
}

// stateFor returns the session's state for t. New states are restored from
// the store when a record exists; states built against an older catalog
// generation are re-adopted. sess.mu must be held.
func (s *Server) stateFor(ctx context.Context, sess *session, t *tree.Tree, gen uint64) *tree.State {
	entry, ok := sess.trees[t.ID()]
	if ok && entry.gen == gen {
		return entry.state
	}
	if ok {
		t.Adopt(entry.state)
		entry.gen = gen
		return entry.state
	}

	st := t.NewState()
	if s.persistent() && (!s.cfg.ReadOnly || s.store.HasDatabase()) {
		rec, found, err := s.store.LoadTreeState(ctx, sess.id, t.ID())
		switch {
		case err != nil:
			glog.Warningf("session %s: load tree %s state: %v", sess.id, t.ID(), err)
		case found:
			if err := store.Restore(st, rec); err != nil {
				glog.Warningf("session %s: restore tree %s state: %v", sess.id, t.ID(), err)
			}
		}
	}
	sess.trees[t.ID()] = &sessionTree{state: st, gen: gen}
	return st
}

func (s *Server) saveState(ctx context.Context, sess *session, t *tree.Tree, st *tree.State) {
	if !s.persistent() || s.cfg.ReadOnly {
		return
	}
	rec, err := store.Snapshot(sess.id, t, st)
	if err == nil {
		err = s.store.SaveTreeState(ctx, rec)
	}
	if err != nil {
		glog.Warningf("session %s: save tree %s state: %v", sess.id, t.ID(), err)
	}
}

type sessionKey struct{}

// WithSessionID tags ctx with the session whose turn is running.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFrom returns the id of the session whose turn is running.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
