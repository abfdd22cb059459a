package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/metrics"
	"github.com/pysugar/daily-nexus/internal/store"
	"github.com/pysugar/daily-nexus/internal/upstream/chat"
)

const (
	defaultHistoryLimit = 20
	maxTimelineTurns    = 500

	systemPreamble = "You are a helpful AI assistant. Here is some context about the user:\n"
)

// ErrEmptyPrompt is returned before any provider call when the prompt is blank.
var ErrEmptyPrompt = &apperr.ValidationError{Field: "prompt", Message: "No prompt provided"}

// ErrForeignSession is returned when a session id was started by another user.
var ErrForeignSession = &apperr.ValidationError{Field: "sessionId", Message: "Unknown session"}

var styleInstructions = map[string]string{
	"professional": "Respond in a clear, professional tone.",
	"casual":       "Respond in a friendly, casual tone.",
	"concise":      "Keep responses short and to the point.",
	"detailed":     "Give thorough, detailed responses.",
}

const replyInstructions = "Reply with a JSON object with fields text, cards and suggestions. " +
	"Only add a card (type summary, draft, task or calendar) when it helps the user act on the answer. " +
	"Suggestions are at most three short follow-up prompts."

// ChatProviders picks the completer for a preferred provider id.
type ChatProviders interface {
	Select(preferred string) (string, chat.Completer, bool)
}

// TurnInput is one user prompt.
type TurnInput struct {
	User          session.UserContext
	SessionID     string
	Prompt        string
	ClientContext json.RawMessage
}

// TurnOutput is the assistant's answer to one prompt.
type TurnOutput struct {
	SessionID   string   `json:"sessionId"`
	Text        string   `json:"text"`
	Cards       []Card   `json:"cards"`
	Suggestions []string `json:"suggestions"`
}

// Turn is a stored turn as returned by History.
type Turn struct {
	ID          int64     `json:"id,string"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Cards       []Card    `json:"cards"`
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Options tunes a Service.
type Options struct {
	HistoryLimit int
	MaxTokens    int
}

// Service runs assistant turns. Turns of one session are handled one at a
// time in arrival order.
type Service struct {
	assembler *Assembler
	turns     store.TurnStore
	chats     ChatProviders
	opts      Options

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(assembler *Assembler, turns store.TurnStore, chats ChatProviders, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Service{
		assembler: assembler,
		turns:     turns,
		chats:     chats,
		opts:      opts,
		locks:     make(map[string]*sessionLock),
	}
}

// HandleTurn records the prompt, asks the chat provider once and records the
// answer. A new session id is issued when in.SessionID is empty.
func (s *Service) HandleTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if !in.User.Valid() {
		return nil, &apperr.ValidationError{Field: "user", Message: "no current user"}
	}
	sessionID := strings.TrimSpace(in.SessionID)
	resumed := sessionID != ""
	if !resumed {
		sessionID = uuid.NewString()
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	if resumed {
		if err := s.checkOwner(ctx, in.User.UserID, sessionID); err != nil {
			return nil, err
		}
	}

	history := s.history(ctx, in.User.UserID, sessionID)

	userTurn := &models.ConversationTurn{
		UserID:    in.User.UserID,
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   prompt,
	}
	userSaved := true
	if err := s.turns.Append(ctx, userTurn); err != nil {
		slog.ErrorContext(ctx, "failed to persist user turn", "session_id", sessionID, "error", err)
		userSaved = false
	}

	snap, err := s.assembler.Assemble(ctx, in.User.UserID)
	if err != nil {
		return nil, err
	}
	snap.ClientContext = in.ClientContext

	provider, completer, ok := s.chats.Select(snap.AISettings.Provider)
	if !ok {
		metrics.ObserveAssistantTurn(snap.AISettings.Provider, metrics.OutcomeError, 0)
		return nil, &apperr.UpstreamError{Provider: snap.AISettings.Provider, Err: errors.New("no chat provider configured")}
	}
	model := ""
	if provider == snap.AISettings.Provider {
		model = snap.AISettings.Model
	}
	if model == "" {
		model = completer.Model()
	}

	system, err := systemPrompt(snap)
	if err != nil {
		return nil, err
	}

	completion, err := completer.Complete(ctx, chat.Request{
		Model:      model,
		System:     system,
		History:    history,
		Prompt:     prompt,
		SchemaName: replySchemaName,
		Schema:     replySchema,
		MaxTokens:  s.opts.MaxTokens,
	})
	if err != nil {
		metrics.ObserveAssistantTurn(provider, metrics.OutcomeError, 0)
		return nil, err
	}

	text, cards, suggestions := parseReply(completion.Content)
	if text == "" {
		metrics.ObserveAssistantTurn(provider, metrics.OutcomeError, 0)
		return nil, &apperr.UpstreamError{Provider: provider, Err: errors.New("empty completion")}
	}

	out := &TurnOutput{SessionID: sessionID, Text: text, Cards: cards, Suggestions: suggestions}

	if !userSaved {
		slog.WarnContext(ctx, "skipping assistant turn, user turn was not stored", "session_id", sessionID)
	} else if err := s.saveAssistantTurn(context.WithoutCancel(ctx), in.User.UserID, snap, out); err != nil {
		metrics.ObserveAssistantTurn(provider, metrics.OutcomeError, 0)
		return nil, err
	}

	metrics.ObserveAssistantTurn(provider, metrics.OutcomeOK, len(cards))
	slog.InfoContext(ctx, "assistant turn completed",
		"session_id", sessionID,
		"provider", provider,
		"model", completion.Model,
		"cards", len(cards),
	)
	return out, nil
}

// History returns the turns of one session, oldest first.
func (s *Service) History(ctx context.Context, user session.UserContext, sessionID string) ([]Turn, error) {
	rows, err := s.turns.ListBySession(ctx, user.UserID, sessionID, maxTimelineTurns)
	if err != nil {
		return nil, err
	}
	out := make([]Turn, 0, len(rows))
	for _, row := range rows {
		t := Turn{
			ID:          row.ID,
			Role:        row.Role,
			Content:     row.Content,
			Cards:       []Card{},
			Suggestions: []string{},
			CreatedAt:   row.CreatedAt,
		}
		decodeList(ctx, row.Cards, &t.Cards)
		decodeList(ctx, row.Suggestions, &t.Suggestions)
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) history(ctx context.Context, userID, sessionID string) []chat.Message {
	rows, err := s.turns.ListBySession(ctx, userID, sessionID, s.opts.HistoryLimit)
	if err != nil {
		slog.WarnContext(ctx, "failed to load session history", "session_id", sessionID, "error", err)
		return nil
	}
	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		role := chat.RoleUser
		if row.Role == models.RoleAssistant {
			role = chat.RoleAssistant
		}
		msgs = append(msgs, chat.Message{Role: role, Content: row.Content})
	}
	return msgs
}

func (s *Service) saveAssistantTurn(ctx context.Context, userID string, snap *ContextSnapshot, out *TurnOutput) error {
	cards, err := json.Marshal(out.Cards)
	if err != nil {
		return fmt.Errorf("encoding cards: %w", err)
	}
	suggestions, err := json.Marshal(out.Suggestions)
	if err != nil {
		return fmt.Errorf("encoding suggestions: %w", err)
	}
	snapshot, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding context snapshot: %w", err)
	}

	turn := &models.ConversationTurn{
		UserID:          userID,
		SessionID:       out.SessionID,
		Role:            models.RoleAssistant,
		Content:         out.Text,
		Cards:           string(cards),
		Suggestions:     string(suggestions),
		ContextSnapshot: string(snapshot),
	}
	if err := s.turns.Append(ctx, turn); err != nil {
		slog.ErrorContext(ctx, "failed to persist assistant turn", "session_id", out.SessionID, "error", err)
		return err
	}
	return nil
}

// checkOwner rejects a session id started by someone else. A failed lookup
// is logged and the turn goes ahead.
func (s *Service) checkOwner(ctx context.Context, userID, sessionID string) error {
	owner, err := s.turns.SessionOwner(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		slog.WarnContext(ctx, "failed to look up session owner", "session_id", sessionID, "error", err)
		return nil
	case owner != userID:
		slog.WarnContext(ctx, "rejected session started by another user", "session_id", sessionID)
		return ErrForeignSession
	}
	return nil
}

// lockSession is keyed by session id alone so the owner check and the first
// append of a session cannot interleave between two users.
func (s *Service) lockSession(sessionID string) func() {
	key := sessionID
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func systemPrompt(snap *ContextSnapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding context: %w", err)
	}
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.Write(data)
	b.WriteString("\n\n")
	if style, ok := styleInstructions[snap.AISettings.ResponseStyle]; ok {
		b.WriteString(style)
		b.WriteString(" ")
	}
	b.WriteString(replyInstructions)
	return b.String(), nil
}

func decodeList[T any](ctx context.Context, raw string, out *[]T) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.WarnContext(ctx, "stored turn has malformed list", "error", err)
	}
	if *out == nil {
		*out = []T{}
	}
}
