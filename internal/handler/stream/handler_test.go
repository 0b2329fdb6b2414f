package stream_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/taleloom/taleloom/backend/internal/config"
	"github.com/taleloom/taleloom/backend/internal/handler/stream"
	chatmodel "github.com/taleloom/taleloom/backend/internal/model/chat"
	settingsmodel "github.com/taleloom/taleloom/backend/internal/model/settings"
	aiservice "github.com/taleloom/taleloom/backend/internal/service/ai"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/internal/service/prompt"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/internal/store"
)

type fakeChatModel struct {
	chunks []string
	calls  int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(f.chunks, ""), nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.calls++
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

type fixture struct {
	handler *stream.Handler
	chatSvc *chatservice.Service
	setSvc  *settingsservice.Service
}

func newFixture(t *testing.T, fake *fakeChatModel) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	resolver := resolve.NewResolver(st)
	chatSvc := chatservice.NewService(st, resolver, nil)
	setSvc := settingsservice.NewService(st)
	assembler := prompt.NewAssembler(st, resolver)
	aiSvc := aiservice.NewServiceWithModel(fake, config.AIConfig{StreamResponse: true})
	return &fixture{
		handler: stream.New(aiSvc, chatSvc, setSvc, assembler, nil),
		chatSvc: chatSvc,
		setSvc:  setSvc,
	}
}

func TestHandleGeneratePersistsExchange(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeChatModel{chunks: []string{"Hello ", "world"}})

	c, err := fx.chatSvc.Create(ctx, chatservice.CreateParams{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := fx.handler.HandleGenerate(ctx, rec, c.ID, "say hi"); err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{`"event":"start"`, `"event":"delta"`, `"event":"message"`, `"event":"end"`} {
		if !strings.Contains(body, want) {
			t.Errorf("SSE body missing %s:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// The user turn and the assistant reply are both persisted now.
	stored, err := fx.chatSvc.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored.Messages))
	}
	if stored.Messages[0].Role != chatmodel.RoleUser || stored.Messages[0].Content != "say hi" {
		t.Errorf("user turn = %+v", stored.Messages[0])
	}
	if stored.Messages[1].Role != chatmodel.RoleAssistant || stored.Messages[1].Content != "Hello world" {
		t.Errorf("assistant turn = %+v", stored.Messages[1])
	}
}

// With streaming disabled the client gets only the final message frame, no
// per-chunk deltas.
func TestHandleGenerateNonStreaming(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	resolver := resolve.NewResolver(st)
	chatSvc := chatservice.NewService(st, resolver, nil)
	h := stream.New(
		aiservice.NewServiceWithModel(&fakeChatModel{chunks: []string{"a", "b"}}, config.AIConfig{}),
		chatSvc,
		settingsservice.NewService(st),
		prompt.NewAssembler(st, resolver),
		nil,
	)

	c, err := chatSvc.Create(ctx, chatservice.CreateParams{})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := h.HandleGenerate(ctx, rec, c.ID, "go"); err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}

	body := rec.Body.String()
	if strings.Contains(body, `"event":"delta"`) {
		t.Errorf("unexpected delta frames in non-streaming mode:\n%s", body)
	}
	if !strings.Contains(body, `"event":"message"`) {
		t.Errorf("missing final message frame:\n%s", body)
	}
}

func TestHandleGenerateRunsCurationPass(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{chunks: []string{"draft"}}
	fx := newFixture(t, fake)

	if _, err := fx.setSvc.SavePreset(ctx, "default", settingsmodel.Preset{CurationEnabled: true}); err != nil {
		t.Fatal(err)
	}
	c, err := fx.chatSvc.Create(ctx, chatservice.CreateParams{})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := fx.handler.HandleGenerate(ctx, rec, c.ID, "go"); err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}

	if fake.calls != 2 {
		t.Fatalf("model called %d times, want 2 (draft + curation)", fake.calls)
	}
	if !strings.Contains(rec.Body.String(), `"event":"curation"`) {
		t.Errorf("SSE body missing curation frames:\n%s", rec.Body.String())
	}
}

func TestHandleRegenerateRewritesTarget(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeChatModel{chunks: []string{"better answer"}})

	c, err := fx.chatSvc.Create(ctx, chatservice.CreateParams{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.chatSvc.AppendMessage(ctx, c.ID, chatmodel.RoleUser, "question", ""); err != nil {
		t.Fatal(err)
	}
	target, err := fx.chatSvc.AppendMessage(ctx, c.ID, chatmodel.RoleAssistant, "first answer", "")
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := fx.handler.HandleRegenerate(ctx, rec, c.ID, target.ID); err != nil {
		t.Fatalf("HandleRegenerate: %v", err)
	}

	stored, err := fx.chatSvc.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored.Messages))
	}
	if stored.Messages[1].Content != "better answer" {
		t.Errorf("regenerated content = %q", stored.Messages[1].Content)
	}
}

// Regenerating a user turn is rejected before anything streams.
func TestHandleRegenerateRejectsUserTarget(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeChatModel{chunks: []string{"x"}})

	c, err := fx.chatSvc.Create(ctx, chatservice.CreateParams{})
	if err != nil {
		t.Fatal(err)
	}
	userMsg, err := fx.chatSvc.AppendMessage(ctx, c.ID, chatmodel.RoleUser, "question", "")
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := fx.handler.HandleRegenerate(ctx, rec, c.ID, userMsg.ID); err == nil {
		t.Fatal("expected error for user-turn target")
	}
	if !strings.Contains(rec.Body.String(), `"event":"error"`) {
		t.Errorf("SSE body missing error frame:\n%s", rec.Body.String())
	}
}
