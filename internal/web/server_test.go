package web

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"canopy/internal/model"
	"canopy/internal/store"
)

const shelfYAML = `id: shelf
title: Shelf
description: Some *books*.
selectMode: multiple
items:
  - id: fiction
    label: Fiction
    items:
      - id: dune
      - id: emma
  - id: cover
    image:
      file: cover.png
      mimeType: image/png
  - id: plain
`

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	client   *http.Client
	stateDir string
	catalog  *store.Catalog
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	defs := t.TempDir()
	if err := os.WriteFile(filepath.Join(defs, "shelf.yaml"), []byte(shelfYAML), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	if err := os.WriteFile(filepath.Join(defs, "cover.png"), []byte("PNG"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	cat := store.NewCatalog(defs, TreeOptions(cfg)...)
	if err := cat.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return startEnv(t, cfg, cat, nil)
}

func startEnv(t *testing.T, cfg ServerConfig, cat *store.Catalog, jar http.CookieJar) *testEnv {
	t.Helper()
	srv, err := NewServer(cfg, cat)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	return &testEnv{
		srv:      srv,
		http:     hs,
		client:   &http.Client{Jar: jar},
		stateDir: cfg.Dir,
		catalog:  cat,
	}
}

func (e *testEnv) get(t *testing.T, path string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.http.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return e.do(t, req)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.http.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

type stateJSON struct {
	TreeID   string   `json:"treeId"`
	Selected []string `json:"selected"`
	Expanded []string `json:"expanded"`
	Value    string   `json:"value"`
}

func (e *testEnv) state(t *testing.T) stateJSON {
	t.Helper()
	resp, body := e.get(t, "/trees/shelf/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %s", resp.StatusCode, body)
	}
	var st stateJSON
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, body)
	}
	return st
}

func TestNewServer_Validates(t *testing.T) {
	if _, err := NewServer(ServerConfig{Addr: "  "}, store.NewCatalog(t.TempDir())); err == nil {
		t.Fatalf("expected error for empty addr")
	}
	if _, err := NewServer(ServerConfig{Addr: ":0"}, nil); err == nil {
		t.Fatalf("expected error for nil catalog")
	}
}

func TestHealthAndListing(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Fatalf("health: %d %q", resp.StatusCode, body)
	}
	resp, body = env.get(t, "/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `href="/trees/shelf"`) {
		t.Fatalf("listing: %d %s", resp.StatusCode, body)
	}
	resp, _ = env.get(t, "/trees/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown tree: %d", resp.StatusCode)
	}
	resp, _ = env.get(t, "/static/app.css")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css") {
		t.Fatalf("app.css: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestTreePage_RendersForm(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := env.get(t, "/trees/shelf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("page: %d", resp.StatusCode)
	}
	for _, want := range []string{
		`id="tree-shelf"`,
		`name="shelf-h"`,
		`value="shelf-fiction"`,
		`name="shelf.open"`,
		`<em>books</em>`,
		`wc_target=shelf`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %s:\n%s", want, body)
		}
	}
	// dune sits under the collapsed fiction row.
	if strings.Contains(body, `value="shelf-dune"`) {
		t.Fatalf("collapsed child rendered")
	}
}

func TestSubmit_UpdatesAndPersistsState(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, ServerConfig{Dir: dir})

	form := url.Values{
		"shelf-h":    {"x"},
		"shelf":      {"shelf-plain", "shelf-cover", "X"},
		"shelf.open": {"shelf-fiction"},
	}
	resp, body := env.post(t, "/trees/shelf", form)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `value="shelf-dune"`) {
		t.Fatalf("expanded children not rendered")
	}

	st := env.state(t)
	if !reflect.DeepEqual(st.Selected, []string{"cover", "plain"}) || !reflect.DeepEqual(st.Expanded, []string{"fiction"}) {
		t.Fatalf("unexpected state %#v", st)
	}
	if st.Value != "cover, plain" {
		t.Fatalf("value = %q", st.Value)
	}

	recs, err := store.Store{Dir: dir}.ListTreeStates(context.Background(), "")
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListTreeStates = %#v, %v", recs, err)
	}
	if !reflect.DeepEqual(recs[0].Selected, []string{"cover", "plain"}) {
		t.Fatalf("persisted selection = %v", recs[0].Selected)
	}

	// A fresh server over the same state dir restores the session.
	again := startEnv(t, ServerConfig{Addr: "127.0.0.1:0", Dir: dir}, env.catalog, env.client.Jar)
	if got := again.state(t); !reflect.DeepEqual(got.Selected, []string{"cover", "plain"}) {
		t.Fatalf("restored selection = %v", got.Selected)
	}
}

func TestSessionReset_ClearsMemoryAndStore(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, ServerConfig{Dir: dir})

	form := url.Values{"shelf-h": {""}, "shelf": {"shelf-plain"}}
	if resp, body := env.post(t, "/trees/shelf", form); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	if got := env.state(t).Selected; !reflect.DeepEqual(got, []string{"plain"}) {
		t.Fatalf("selected = %v", got)
	}

	resp, _ := env.post(t, "/session/reset", url.Values{})
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/trees" {
		t.Fatalf("reset: %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	if got := env.state(t).Selected; len(got) != 0 {
		t.Fatalf("selection survived reset: %v", got)
	}
	recs, err := store.Store{Dir: dir}.ListTreeStates(context.Background(), "")
	if err != nil || len(recs) != 0 {
		t.Fatalf("stored states after reset = %#v, %v", recs, err)
	}

	// Resetting an empty session is fine.
	if resp, _ := env.post(t, "/session/reset", url.Values{}); resp.StatusCode != http.StatusOK {
		t.Fatalf("second reset: %d", resp.StatusCode)
	}
}

func TestOpen_FragmentAndActivity(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, ServerConfig{Dir: dir})

	resp, body := env.get(t, "/trees/shelf/open?wc_tiid=shelf-fiction&fragment=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open: %d %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(strings.TrimSpace(body), "<form") || !strings.Contains(body, "opened") {
		t.Fatalf("unexpected fragment:\n%s", body)
	}
	if st := env.state(t); !reflect.DeepEqual(st.Expanded, []string{"fiction"}) {
		t.Fatalf("expanded = %v", st.Expanded)
	}
	// The open marker lasts a single turn.
	if _, page := env.get(t, "/trees/shelf"); strings.Contains(page, "row opened") {
		t.Fatalf("open marker survived the turn")
	}

	acts, err := store.Store{Dir: dir}.ReadActivity(context.Background(), store.ActivityFilter{})
	if err != nil || len(acts) != 1 {
		t.Fatalf("ReadActivity = %#v, %v", acts, err)
	}
	if acts[0].Type != model.ActivityOpen || acts[0].ItemID != "fiction" || acts[0].SessionID == "" {
		t.Fatalf("unexpected activity %#v", acts[0])
	}
}

func TestOpen_ProtocolErrorsAre400(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	for _, path := range []string{
		"/trees/shelf/open",
		"/trees/shelf/open?wc_tiid=X",
		"/trees/shelf/open?wc_tiid=shelf-plain",
		"/trees/shelf/open?wc_tiid=shelf-dune",
	} {
		resp, body := env.get(t, path)
		if resp.StatusCode != http.StatusBadRequest || strings.TrimSpace(body) != "bad request" {
			t.Fatalf("%s: %d %q", path, resp.StatusCode, body)
		}
	}
}

func TestOpen_DatastarPatch(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := env.get(t, "/trees/shelf/open?wc_tiid=shelf-fiction", "Datastar-Request", "true")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open: %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{"datastar-patch-elements", "#tree-shelf", "datastar-patch-signals", "treeOpen"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %s:\n%s", want, body)
		}
	}
}

func TestImageRequest(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := env.get(t, "/trees/shelf?wc_target=shelf&wc_tiid=cover&wc_ck=v1")
	if resp.StatusCode != http.StatusOK || body != "PNG" {
		t.Fatalf("image: %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "image/png" || !strings.Contains(resp.Header.Get("Cache-Control"), "max-age") {
		t.Fatalf("headers: %v", resp.Header)
	}
	resp, _ = env.get(t, "/trees/shelf?wc_target=shelf&wc_tiid=plain")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("imageless row: %d", resp.StatusCode)
	}
	// A target aimed at another component renders the page untouched.
	resp, body = env.get(t, "/trees/shelf?wc_target=other&wc_tiid=cover")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `id="tree-shelf"`) {
		t.Fatalf("foreign target: %d", resp.StatusCode)
	}
}

func TestReadOnly_DoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, ServerConfig{Dir: dir, ReadOnly: true})
	resp, _ := env.post(t, "/trees/shelf", url.Values{"shelf-h": {"x"}, "shelf": {"shelf-plain"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d", resp.StatusCode)
	}
	if st := env.state(t); !reflect.DeepEqual(st.Selected, []string{"plain"}) {
		t.Fatalf("selection = %v", st.Selected)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("read-only server wrote %v (%v)", entries, err)
	}
	recs, err := store.Store{Dir: dir}.ListTreeStates(context.Background(), "")
	if err != nil || len(recs) != 0 {
		t.Fatalf("read-only server persisted %#v (%v)", recs, err)
	}
}

func TestReadOnly_UsesExistingKey(t *testing.T) {
	dir := t.TempDir()
	want, err := loadOrInitSecretKey(dir, false)
	if err != nil {
		t.Fatalf("loadOrInitSecretKey: %v", err)
	}
	got, err := loadOrInitSecretKey(dir, true)
	if err != nil || string(got) != string(want) {
		t.Fatalf("read-only key = %q, %v; want %q", got, err, want)
	}
}

func TestTreeState_Fields(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := env.get(t, "/trees/shelf/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %s", resp.StatusCode, body)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var keys []string
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"expanded", "selected", "treeId", "value"}) {
		t.Fatalf("state keys = %v", keys)
	}
}

func TestReload_KeepsStateOfUnchangedTrees(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	form := url.Values{"shelf-h": {""}, "shelf": {"shelf-plain"}}
	if resp, body := env.post(t, "/trees/shelf", form); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}

	other := filepath.Join(env.catalog.Dir(), "desk.yaml")
	if err := os.WriteFile(other, []byte("id: desk\nitems:\n  - id: lamp\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := env.catalog.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := env.state(t).Selected; !reflect.DeepEqual(got, []string{"plain"}) {
		t.Fatalf("selection lost on unrelated reload: %v", got)
	}

	edited := strings.Replace(shelfYAML, "title: Shelf", "title: Top shelf", 1)
	if err := os.WriteFile(filepath.Join(env.catalog.Dir(), "shelf.yaml"), []byte(edited), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := env.catalog.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := env.state(t).Selected; len(got) != 0 {
		t.Fatalf("selection kept across an edited definition: %v", got)
	}
}

func TestSessions_IdleEvicted(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, ServerConfig{Dir: dir})
	var clock atomic.Int64
	clock.Store(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	env.srv.sessions.setClock(func() time.Time { return time.Unix(0, clock.Load()) })

	form := url.Values{"shelf-h": {""}, "shelf": {"shelf-plain"}}
	if resp, body := env.post(t, "/trees/shelf", form); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	anon := &http.Client{}
	for i := 0; i < 20; i++ {
		resp, err := anon.Get(env.http.URL + "/trees/shelf")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
	}
	if n := env.srv.sessions.live(); n != 21 {
		t.Fatalf("live sessions = %d", n)
	}

	clock.Add(int64(sessionIdle + time.Minute))
	resp, err := anon.Get(env.http.URL + "/trees/shelf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if n := env.srv.sessions.live(); n != 1 {
		t.Fatalf("live sessions after idle sweep = %d", n)
	}

	// The evicted session comes back from the store.
	if got := env.state(t).Selected; !reflect.DeepEqual(got, []string{"plain"}) {
		t.Fatalf("restored selection = %v", got)
	}
}

func TestSessionRegistry_HeldSessionsSurviveSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newSessionRegistry()
	r.setClock(func() time.Time { return now })

	streaming := r.get("streaming")
	release := r.hold(streaming)
	r.get("idle")

	now = now.Add(sessionIdle + time.Minute)
	r.get("fresh")
	if n := r.live(); n != 2 {
		t.Fatalf("live sessions = %d", n)
	}
	if r.get("streaming") != streaming {
		t.Fatalf("held session was evicted")
	}

	release()
	now = now.Add(sessionIdle + time.Minute)
	r.get("fresh")
	if n := r.live(); n != 1 {
		t.Fatalf("live sessions after release = %d", n)
	}
}

func TestEvents_PatchOnReload(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/trees/shelf/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	type result struct {
		resp *http.Response
		err  error
	}
	started := make(chan result, 1)
	go func() {
		resp, err := env.client.Do(req)
		started <- result{resp, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for env.srv.hub.size() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	env.srv.NotifyReload()

	var resp *http.Response
	select {
	case r := <-started:
		if r.err != nil {
			t.Fatalf("events: %v", r.err)
		}
		resp = r.resp
	case <-time.After(5 * time.Second):
		t.Fatalf("no response headers from event stream")
	}
	defer resp.Body.Close()

	found := make(chan bool, 1)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.Contains(sc.Text(), "datastar-patch-elements") {
				found <- true
				return
			}
		}
		found <- false
	}()
	select {
	case ok := <-found:
		if !ok {
			t.Fatalf("stream ended without a patch")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no patch after reload")
	}
}

func TestSessionCookie_SignedAndVerified(t *testing.T) {
	secret := []byte("k")
	tok, err := signToken(secret, signedPayload{Sub: "s1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	sp, err := verifyToken(secret, tok)
	if err != nil || sp.Sub != "s1" {
		t.Fatalf("verifyToken = %#v, %v", sp, err)
	}
	if _, err := verifyToken([]byte("other"), tok); err == nil {
		t.Fatalf("token verified with the wrong key")
	}
	expired, _ := signToken(secret, signedPayload{Sub: "s1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := verifyToken(secret, expired); err == nil {
		t.Fatalf("expired token verified")
	}
}
