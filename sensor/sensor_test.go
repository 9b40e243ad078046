package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu       sync.Mutex
	calls    int
	requests []*llm.Request
	text     string
	err      error
}

func (f *fakeClient) Model() string { return "fake" }

func (f *fakeClient) RunStream(context.Context, *llm.Request) (llm.Stream, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) RunDeferred(_ context.Context, req *llm.Request) (llm.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeOp{res: &llm.PartialResult{Alternatives: []llm.Alternative{{Text: f.text, Status: llm.StatusFinal}}}}, nil
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOp struct {
	res     *llm.PartialResult
	timeout time.Duration
}

func (o *fakeOp) ID() string { return "op" }

func (o *fakeOp) Wait(_ context.Context, timeout, _ time.Duration) (*llm.PartialResult, error) {
	o.timeout = timeout
	return o.res, nil
}

var fixed = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func TestUpdateCachesByRenderedPrompt(t *testing.T) {
	client := &fakeClient{text: "Wear a coat."}
	s, err := New(Config{
		SystemPrompt: "You are a stylist.",
		UserPrompt:   `{{ now.Format "2006-01-02" }}`,
		Client:       client,
		Now:          func() time.Time { return fixed },
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background()))
	require.NoError(t, s.Update(context.Background()))
	assert.Equal(t, 1, client.Calls())

	req := client.requests[0]
	assert.Equal(t, 180, req.Options.MaxTokens)
	assert.Equal(t, []llm.ProviderMessage{
		{Role: llm.RoleSystem, Text: "You are a stylist."},
		{Role: llm.RoleUser, Text: "2026-10-19"},
	}, req.Messages)

	st := s.State()
	assert.Equal(t, DefaultName, st.Name)
	assert.Equal(t, "2026-10-19T08:30:00Z", st.Value)
	assert.Equal(t, "Wear a coat.", st.Attributes["completion"])
}

func TestUpdateSkippedWhileHostStarting(t *testing.T) {
	client := &fakeClient{text: "x"}
	s, err := New(Config{UserPrompt: "hi", Client: client, Running: func() bool { return false }})
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background()))
	assert.Zero(t, client.Calls())
	assert.Empty(t, s.State().Value)
}

func TestUpdateError(t *testing.T) {
	client := &fakeClient{err: &llm.TransportError{Op: "completionAsync", StatusCode: 500}}
	s, err := New(Config{UserPrompt: "hi", Client: client})
	require.NoError(t, err)
	err = s.Update(context.Background())
	assert.True(t, llm.IsTransport(err))
	assert.Empty(t, s.State().Attributes["completion"])
	assert.Empty(t, s.State().Value)
}

func TestNewRejectsBadTemplate(t *testing.T) {
	_, err := New(Config{UserPrompt: "{{ .Missing ", Client: &fakeClient{}})
	require.Error(t, err)
	_, err = New(Config{UserPrompt: "x"})
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &fakeClient{text: "ok"}
	s, err := New(Config{UserPrompt: "hi", Client: client})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return client.Calls() >= 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, client.Calls())

	assert.Error(t, s.Run(context.Background(), 0))
}
