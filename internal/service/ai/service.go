// Package ai wraps the model backend behind the streaming capability the
// prompt pipeline consumes: generate a chunk stream for an assembled prompt,
// optionally followed by a curation pass over the accumulated output.
package ai

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/config"
	"github.com/taleloom/taleloom/backend/internal/model/settings"
)

// Service owns the chat model instance.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
}

// NewService creates the model backend from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create chat model")
	}
	return &Service{chatModel: chatModel, cfg: cfg}, nil
}

// NewServiceWithModel injects a prebuilt model, used by tests.
func NewServiceWithModel(chatModel model.ChatModel, cfg config.AIConfig) *Service {
	return &Service{chatModel: chatModel, cfg: cfg}
}

// StreamingEnabled reports whether responses stream chunk by chunk.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Generate starts a streaming completion for the assembled prompt. The
// system instruction is prepended as a system message; preset parameters map
// onto backend options. Cancelling ctx aborts the stream.
func (s *Service) Generate(ctx context.Context, system string, messages []*schema.Message, preset settings.Preset) (*schema.StreamReader[*schema.Message], error) {
	full := make([]*schema.Message, 0, len(messages)+1)
	if system != "" {
		full = append(full, schema.SystemMessage(system))
	}
	full = append(full, messages...)

	stream, err := s.chatModel.Stream(ctx, full, presetOptions(preset)...)
	if err != nil {
		return nil, errors.Wrap(err, "stream model output")
	}
	return stream, nil
}

// Curate runs the optional second pass: the first pass's accumulated output
// is resubmitted as a single user message under the same system instruction.
// A whitespace-only draft skips the pass and yields an empty stream.
func (s *Service) Curate(ctx context.Context, system, draft string, preset settings.Preset) (*schema.StreamReader[*schema.Message], error) {
	if strings.TrimSpace(draft) == "" {
		return schema.StreamReaderFromArray([]*schema.Message{}), nil
	}
	return s.Generate(ctx, system, []*schema.Message{schema.UserMessage(draft)}, preset)
}

// Drain consumes a stream to completion and concatenates the chunks,
// invoking onChunk for each non-empty delta. Used where the caller does not
// need the raw reader.
func Drain(stream *schema.StreamReader[*schema.Message], onChunk func(*schema.Message)) (*schema.Message, error) {
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, err := stream.Recv()
		if isEOF(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if onChunk != nil && chunk.Content != "" {
			onChunk(chunk)
		}
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func presetOptions(preset settings.Preset) []model.Option {
	var opts []model.Option
	if preset.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*preset.Temperature)))
	}
	if preset.TopP != nil {
		opts = append(opts, model.WithTopP(float32(*preset.TopP)))
	}
	if preset.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*preset.MaxTokens))
	}
	return opts
}
