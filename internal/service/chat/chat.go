package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/session"
	"github.com/mindsift/mindsift/internal/service/openai"
	"github.com/mindsift/mindsift/internal/service/search"
)

// Completer generates a chat reply from a conversation
type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []openai.Message) (string, error)
}

// noContextReply is returned without calling the model when retrieval
// finds nothing for the question.
const noContextReply = "I couldn't find anything relevant to that in the transcript. Try rephrasing the question or asking about another part of the video."

const systemPrompt = `You are an assistant that answers questions about YouTube video transcripts.
Answer using ONLY the transcript excerpts provided below. If the excerpts do not
contain the answer, say so instead of guessing.
When you reference something a speaker said, cite the moment it was said using
the timestamp of the excerpt in [MM:SS] form (or [HH:MM:SS] past one hour).`

// Service runs retrieval-grounded conversations over ingested transcripts
type Service interface {
	// CreateSession starts a conversation scoped to a video or a channel
	CreateSession(ctx context.Context, scope, targetID string) (*model.ChatSession, error)

	// Ask answers a question within a session. The reply is grounded in
	// retrieved transcript chunks and its timestamp references are resolved
	// into citations. Both the question and the reply are persisted.
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (*model.ChatMessage, error)
}

type service struct {
	completer   Completer
	searcher    search.Service
	sessionRepo session.Repository
	cfg         config.OpenAIConfig
	logger      *slog.Logger
}

// NewService creates a chat service
func NewService(completer Completer, searcher search.Service, sessionRepo session.Repository, cfg config.OpenAIConfig, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		completer:   completer,
		searcher:    searcher,
		sessionRepo: sessionRepo,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *service) CreateSession(ctx context.Context, scope, targetID string) (*model.ChatSession, error) {
	if targetID == "" {
		return nil, errors.New(errors.CodeInvalidArg, "target ID is required")
	}

	sess := &model.ChatSession{
		ID:        uuid.New(),
		Scope:     scope,
		CreatedAt: time.Now(),
	}
	switch scope {
	case model.ScopeVideo:
		sess.VideoID = &targetID
	case model.ScopeChannel:
		sess.ChannelID = &targetID
	default:
		return nil, errors.New(errors.CodeInvalidArg, "scope must be video or channel")
	}

	if err := s.sessionRepo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *service) Ask(ctx context.Context, sessionID uuid.UUID, question string) (*model.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New(errors.CodeInvalidArg, "question is required")
	}

	sess, err := s.sessionRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	targetID := sessionTarget(sess)
	if targetID == "" {
		return nil, errors.New(errors.CodeInternal, "session has no target")
	}

	history, err := s.sessionRepo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.searcher.Search(ctx, question, sess.Scope, targetID)
	if err != nil {
		return nil, err
	}

	userMsg := &model.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      "user",
		Content:   question,
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	var reply string
	var citations []model.Citation
	if len(chunks) == 0 {
		// Nothing to ground an answer in, skip the model call entirely
		reply = noContextReply
		citations = []model.Citation{}
	} else {
		reply, err = s.complete(ctx, sess, history, chunks, question)
		if err != nil {
			return nil, err
		}
		citations = ParseCitations(reply, chunks)
	}

	assistantMsg := &model.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      "assistant",
		Content:   reply,
		Citations: citations,
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	s.logger.Info("chat reply generated",
		"session_id", sessionID,
		"scope", sess.Scope,
		"context_chunks", len(chunks),
		"citations", len(citations))

	return assistantMsg, nil
}

func (s *service) complete(ctx context.Context, sess *model.ChatSession, history []*model.ChatMessage, chunks []*model.ScoredChunk, question string) (string, error) {
	messages := make([]openai.Message, 0, len(history)+3)
	messages = append(messages, openai.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, openai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.Message{
		Role:    "system",
		Content: "Transcript excerpts:\n\n" + formatContext(chunks),
	})
	messages = append(messages, openai.Message{Role: "user", Content: question})

	reply, err := s.completer.ChatCompletion(ctx, s.chatModel(sess.Scope), messages)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeDependency, "failed to generate reply")
	}
	return reply, nil
}

// chatModel picks the model for a scope. Channel conversations carry far
// more context, so they run on the cheaper model.
func (s *service) chatModel(scope string) string {
	if scope == model.ScopeChannel {
		return s.cfg.ChannelChatModel
	}
	return s.cfg.ChatModel
}

// formatContext renders retrieved chunks as annotated excerpts so the model
// can cite them by timestamp.
func formatContext(chunks []*model.ScoredChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s - %s] (%s)\n%s",
			FormatTimestamp(c.StartTime), FormatTimestamp(c.EndTime), c.VideoTitle, c.Text)
	}
	return sb.String()
}

func sessionTarget(sess *model.ChatSession) string {
	switch {
	case sess.Scope == model.ScopeVideo && sess.VideoID != nil:
		return *sess.VideoID
	case sess.Scope == model.ScopeChannel && sess.ChannelID != nil:
		return *sess.ChannelID
	}
	return ""
}
