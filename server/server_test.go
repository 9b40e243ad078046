package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/black-roland/homeassistant-yandexgpt/integration"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type provider struct {
	mu       sync.Mutex
	fail     bool
	requests []map[string]any
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.mu.Lock()
	p.requests = append(p.requests, body)
	fail := p.fail
	p.mu.Unlock()
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
		return
	}
	_, _ = io.WriteString(w, `{"result":{"alternatives":[{"message":{"role":"assistant","text":"Свет"},"status":"ALTERNATIVE_STATUS_PARTIAL"}]}}`+"\n")
	_, _ = io.WriteString(w, `{"result":{"alternatives":[{"message":{"role":"assistant","text":"Свет вкл"},"status":"ALTERNATIVE_STATUS_PARTIAL"}]}}`+"\n")
	_, _ = io.WriteString(w, `{"result":{"alternatives":[{"message":{"role":"assistant","text":"Свет включён."},"status":"ALTERNATIVE_STATUS_FINAL"}]}}`+"\n")
}

func (p *provider) messages(i int) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]["messages"].([]any)
}

type fakeGenerator struct {
	err  error
	seed uint64
}

func (g *fakeGenerator) Generate(_ context.Context, seed uint64, _, dest string) (string, error) {
	g.seed = seed
	if g.err != nil {
		return "", g.err
	}
	return "/media/" + dest, nil
}

func setupTestServer(t *testing.T) (*Server, *provider, *fakeGenerator) {
	t.Helper()
	p := &provider{}
	upstream := httptest.NewServer(p)
	t.Cleanup(upstream.Close)

	reg, err := integration.NewRegistry(integration.RegistryConfig{BaseURL: upstream.URL, HTTPClient: upstream.Client()})
	require.NoError(t, err)
	_, err = reg.Setup(context.Background(), integration.Entry{
		ID: "kitchen", FolderID: "f", APIKey: "k", APIMode: integration.APIModeNative, Options: integration.DefaultOptions(),
	})
	require.NoError(t, err)

	gen := &fakeGenerator{}
	images := func(id string) (ImageGenerator, error) {
		if id != "kitchen" {
			return nil, errors.New("unknown entry " + id)
		}
		return gen, nil
	}
	return New(reg, images, Config{}), p, gen
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"kitchen"}, body["entries"])
}

func TestConversationStreamsDeltas(t *testing.T) {
	srv, p, _ := setupTestServer(t)

	rec := post(t, srv.Handler(), "/api/conversation/kitchen", ConversationRequest{Text: "Включи свет"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body)
	require.Len(t, events, 4)
	assert.Equal(t, sseEvent{"delta", `{"role":"assistant"}`}, events[0])
	assert.Equal(t, sseEvent{"delta", `{"content":"Свет"}`}, events[1])
	assert.Equal(t, sseEvent{"delta", `{"content":" включён."}`}, events[2])
	assert.Equal(t, "done", events[3].name)

	var done struct {
		Speech         string `json:"speech"`
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &done))
	assert.Equal(t, "Свет включён.", done.Speech)
	require.NotEmpty(t, done.ConversationID)

	rec = post(t, srv.Handler(), "/api/conversation/kitchen", ConversationRequest{Text: "Спасибо", ConversationID: done.ConversationID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, p.messages(1), 4)
	assert.Equal(t, 1, srv.sessions.Len())
}

func TestConversationErrors(t *testing.T) {
	srv, p, _ := setupTestServer(t)

	rec := post(t, srv.Handler(), "/api/conversation/garage", ConversationRequest{Text: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(t, srv.Handler(), "/api/conversation/kitchen", map[string]string{"conversation_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.mu.Lock()
	p.fail = true
	p.mu.Unlock()
	rec = post(t, srv.Handler(), "/api/conversation/kitchen", ConversationRequest{Text: "hi"})
	events := readEvents(t, rec.Body)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &body))
	assert.Equal(t, "yandex_cloud_error", body.TranslationKey)
	assert.Contains(t, body.Error, "overloaded")
}

func TestGenerateImage(t *testing.T) {
	srv, _, gen := setupTestServer(t)
	seed := uint64(7)

	rec := post(t, srv.Handler(), "/api/services/generate_image", ImageRequest{ConfigEntry: "kitchen", Seed: &seed, Prompt: "sunset", FileName: "sunset.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"file_name":"/media/sunset.png"}`, rec.Body.String())
	assert.Equal(t, uint64(7), gen.seed)

	rec = post(t, srv.Handler(), "/api/services/generate_image", ImageRequest{ConfigEntry: "garage", Prompt: "x", FileName: "x.png"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(t, srv.Handler(), "/api/services/generate_image", map[string]string{"config_entry": "kitchen"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	gen.err = llm.ErrTimeout
	rec = post(t, srv.Handler(), "/api/services/generate_image", ImageRequest{ConfigEntry: "kitchen", Prompt: "x", FileName: "x.png"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	gen.err = &llm.TransportError{Op: "imageGeneration", StatusCode: 400}
	rec = post(t, srv.Handler(), "/api/services/generate_image", ImageRequest{ConfigEntry: "kitchen", Prompt: "x", FileName: "x.png"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerateImageDisabled(t *testing.T) {
	reg, err := integration.NewRegistry(integration.RegistryConfig{})
	require.NoError(t, err)
	srv := New(reg, nil, Config{})
	rec := post(t, srv.Handler(), "/api/services/generate_image", ImageRequest{ConfigEntry: "a", Prompt: "x", FileName: "x.png"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSessionsSerialiseTurns(t *testing.T) {
	s := NewSessions(time.Minute)
	log, release := s.Acquire("")
	id := log.ConversationID

	acquired := make(chan struct{})
	go func() {
		again, rel := s.Acquire(id)
		assert.Same(t, log, again)
		rel()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second turn ran concurrently")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never started")
	}
}

func TestSessionsEvictIdle(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, release := s.Acquire("old")
	release()
	now = now.Add(2 * time.Minute)
	_, release = s.Acquire("new")
	release()
	assert.Equal(t, 1, s.Len())
}
