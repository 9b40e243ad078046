// Package imagegen renders images with the YandexART model.
package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/llm/foundation"
)

const generatePath = "/foundationModels/v1/imageGenerationAsync"

// DefaultPollConfig polls once a second for at most 30 seconds.
func DefaultPollConfig() llm.PollConfig {
	return llm.PollConfig{Interval: time.Second, Timeout: 30 * time.Second}
}

// API is the subset of the foundation client used for image generation.
type API interface {
	FolderID() string
	Do(ctx context.Context, method, path string, in, out any) error
	Poll(ctx context.Context, id string, cfg llm.PollConfig) (*foundation.OperationStatus, error)
}

type generationRequest struct {
	ModelURI          string            `json:"modelUri"`
	GenerationOptions generationOptions `json:"generationOptions"`
	Messages          []weightedText    `json:"messages"`
}

type generationOptions struct {
	Seed        string      `json:"seed"`
	AspectRatio aspectRatio `json:"aspectRatio"`
}

type aspectRatio struct {
	WidthRatio  string `json:"widthRatio"`
	HeightRatio string `json:"heightRatio"`
}

type weightedText struct {
	Weight string `json:"weight"`
	Text   string `json:"text"`
}

type generationResponse struct {
	Image        string `json:"image"`
	ModelVersion string `json:"modelVersion"`
}

// Generator submits generation requests and stores results through a Sink.
type Generator struct {
	api    API
	sink   Sink
	poll   llm.PollConfig
	logger *zap.Logger
}

// Option customises a Generator.
type Option func(*Generator)

func WithPollConfig(cfg llm.PollConfig) Option { return func(g *Generator) { g.poll = cfg } }
func WithLogger(l *zap.Logger) Option         { return func(g *Generator) { g.logger = l } }

func NewGenerator(api API, sink Sink, opts ...Option) *Generator {
	g := &Generator{api: api, sink: sink, poll: DefaultPollConfig(), logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate renders prompt and writes the image to dest. It returns the
// location reported by the sink.
func (g *Generator) Generate(ctx context.Context, seed uint64, prompt, dest string) (string, error) {
	if prompt == "" {
		return "", errors.New("imagegen: prompt is required")
	}
	if dest == "" {
		return "", errors.New("imagegen: destination is required")
	}
	req := generationRequest{
		ModelURI: llm.ArtModelURI(g.api.FolderID()),
		GenerationOptions: generationOptions{
			Seed:        strconv.FormatUint(seed, 10),
			AspectRatio: aspectRatio{WidthRatio: "16", HeightRatio: "9"},
		},
		Messages: []weightedText{{Weight: "1", Text: prompt}},
	}
	var op foundation.OperationStatus
	if err := g.api.Do(ctx, http.MethodPost, generatePath, req, &op); err != nil {
		return "", err
	}
	if op.ID == "" {
		return "", &llm.TransportError{Op: "imageGenerationAsync", Details: "empty operation id"}
	}
	g.logger.Debug("image generation submitted", zap.String("operation_id", op.ID))

	done, err := g.api.Poll(ctx, op.ID, g.poll)
	if err != nil {
		return "", fmt.Errorf("operation %s: %w", op.ID, err)
	}
	var resp generationResponse
	if err := json.Unmarshal(done.Response, &resp); err != nil {
		return "", &llm.TransportError{Op: "imageGeneration", Err: fmt.Errorf("decode response: %w", err)}
	}
	img, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return "", &llm.TransportError{Op: "imageGeneration", Err: fmt.Errorf("decode image: %w", err)}
	}
	loc, err := g.sink.Write(ctx, dest, img)
	if err != nil {
		return "", fmt.Errorf("imagegen: write %s: %w", dest, err)
	}
	g.logger.Info("image generated", zap.String("location", loc), zap.Int("bytes", len(img)))
	return loc, nil
}
