package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/llm/foundation"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func newAPI(t *testing.T, h http.HandlerFunc) *foundation.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := foundation.NewClient(foundation.Config{FolderID: "b1g", APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func fastPoll() Option {
	return WithPollConfig(llm.PollConfig{Interval: time.Millisecond, Timeout: 200 * time.Millisecond})
}

func TestGenerateWritesFile(t *testing.T) {
	var body map[string]any
	var polls atomic.Int32
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case generatePath:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = io.WriteString(w, `{"id":"art-1","done":false}`)
		case "/operations/art-1":
			if polls.Add(1) == 1 {
				_, _ = io.WriteString(w, `{"id":"art-1","done":false}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"art-1","done":true,"response":{"image":"`+base64.StdEncoding.EncodeToString(pngHeader)+`","modelVersion":"v1"}}`)
		default:
			http.NotFound(w, r)
		}
	})
	dir := t.TempDir()
	g := NewGenerator(api, FileSink{Dir: dir}, fastPoll())

	loc, err := g.Generate(context.Background(), 42, "a cat on a roof", "www/cat.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "www", "cat.png"), loc)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	assert.Equal(t, "art://b1g/yandex-art/latest", body["modelUri"])
	opts := body["generationOptions"].(map[string]any)
	assert.Equal(t, "42", opts["seed"])
	assert.Equal(t, map[string]any{"widthRatio": "16", "heightRatio": "9"}, opts["aspectRatio"])
	assert.Equal(t, []any{map[string]any{"weight": "1", "text": "a cat on a roof"}}, body["messages"])
}

func TestGenerateTimeout(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"art-1","done":false}`)
	})
	g := NewGenerator(api, FileSink{Dir: t.TempDir()}, WithPollConfig(llm.PollConfig{Interval: time.Millisecond, Timeout: 20 * time.Millisecond}))
	_, err := g.Generate(context.Background(), 1, "x", "x.png")
	require.ErrorIs(t, err, llm.ErrTimeout)
}

func TestGenerateSubmitFailure(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"prompt is empty"}}`)
	})
	g := NewGenerator(api, FileSink{Dir: t.TempDir()}, fastPoll())
	_, err := g.Generate(context.Background(), 1, "x", "x.png")
	var te *llm.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)

	_, err = g.Generate(context.Background(), 1, "", "x.png")
	require.Error(t, err)
}

type fakeS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

func TestGenerateRejectsEmptyOperationID(t *testing.T) {
	var polled atomic.Bool
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			polled.Store(true)
		}
		_, _ = io.WriteString(w, `{"done":false}`)
	})
	g := NewGenerator(api, FileSink{Dir: t.TempDir()}, fastPoll())

	_, err := g.Generate(context.Background(), 1, "sunset", "sunset.png")
	var te *llm.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "empty operation id", te.Details)
	assert.False(t, polled.Load())
}

func TestS3SinkWrite(t *testing.T) {
	fake := &fakeS3{}
	sink := newS3SinkFromClient(fake, S3Config{Bucket: "images", Prefix: "hass"})

	loc, err := sink.Write(context.Background(), "cat.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "s3://images/hass/cat.png", loc)
	assert.Equal(t, "images", *fake.in.Bucket)
	assert.Equal(t, "hass/cat.png", *fake.in.Key)
	assert.Equal(t, "image/png", *fake.in.ContentType)

	fake.err = errors.New("access denied")
	_, err = sink.Write(context.Background(), "cat.png", pngHeader)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3Config{})
	require.Error(t, err)

	sink, err := NewS3Sink(context.Background(), S3Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, DefaultS3Region, sink.cfg.Region)
	assert.Equal(t, DefaultS3Endpoint, sink.cfg.Endpoint)
}
