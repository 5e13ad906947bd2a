package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/llm"
)

var sessionKeyPrefix = domain.KeyPrefix + "session:"

const summarizeSystem = "Bạn là trợ lý tóm tắt. Tóm tắt đoạn hội thoại sau thành một đoạn ngắn " +
	"bằng tiếng Việt, giữ lại tên người, môn học, ngày giờ và các con số quan trọng."

// sessionState is the persisted form of one session's memory.
type sessionState struct {
	Turns    []domain.Turn            `json:"turns"`
	Entities map[string]domain.Entity `json:"entities"`
	Summary  string                   `json:"summary"`
	Greeted  bool                     `json:"greeted"`
}

// Service owns conversation memory. Each session is exclusively owned:
// operations on the same session id are serialized through a per-session
// lock, while different sessions proceed concurrently.
type Service struct {
	store Store
	gen   Summarizer

	window          int
	ttl             time.Duration
	maxSummaryChars int
	logger          *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a memory service. gen may be nil; summaries then fall
// back to verbatim concatenation.
func New(store Store, gen Summarizer, cfg config.MemoryConfig, logger *zap.Logger) *Service {
	return &Service{
		store:           store,
		gen:             gen,
		window:          cfg.Window,
		ttl:             time.Duration(cfg.SessionTTLSec) * time.Second,
		maxSummaryChars: cfg.MaxSummaryChars,
		logger:          logger,
		locks:           make(map[string]*sync.Mutex),
	}
}

// Append records a turn, updates tracked entities and folds turns
// beyond the window into the running summary.
func (s *Service) Append(ctx context.Context, sessionID string, turn domain.Turn) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	if turn.Role == domain.RoleUser {
		mergeEntities(state.Entities, ExtractEntities(turn.Text, turn.At))
	}
	state.Turns = append(state.Turns, turn)

	if len(state.Turns) > s.window {
		overflow := state.Turns[:len(state.Turns)-s.window]
		state.Summary = s.fold(ctx, state.Summary, overflow)
		state.Turns = append([]domain.Turn(nil), state.Turns[len(state.Turns)-s.window:]...)
	}

	return s.save(ctx, sessionID, state)
}

// Snapshot returns the session's retrievable context. An unknown
// session yields an empty snapshot.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (domain.MemorySnapshot, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.MemorySnapshot{}, err
	}
	return domain.MemorySnapshot{
		Turns:    state.Turns,
		Entities: state.Entities,
		Summary:  state.Summary,
	}, nil
}

// HasGreeted reports whether the session already received a greeting.
func (s *Service) HasGreeted(ctx context.Context, sessionID string) (bool, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return state.Greeted, nil
}

// MarkGreeted sets the session greeting flag. It is never cleared for
// the lifetime of the session.
func (s *Service) MarkGreeted(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.Greeted {
		return nil
	}
	state.Greeted = true
	return s.save(ctx, sessionID, state)
}

// ResolveReferences rewrites third-person pronouns in the text to the
// most recently mentioned person entity, so follow-up questions like
// "Ông ấy dạy môn gì?" reach retrieval with the actual name.
func (s *Service) ResolveReferences(ctx context.Context, sessionID, text string) (string, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return text, err
	}

	person, ok := latestPerson(state.Entities)
	if !ok {
		return text, nil
	}
	return ReplacePronouns(text, person), nil
}

// Clear removes a session's memory entirely.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Del(ctx, sessionKey(sessionID)); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}

// fold compresses overflow turns into the summary. When the summarizer
// is unavailable or fails, the turns are appended verbatim so no turn
// is ever silently dropped.
func (s *Service) fold(ctx context.Context, summary string, overflow []domain.Turn) string {
	var b strings.Builder
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	for _, t := range overflow {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	verbatim := strings.TrimRight(b.String(), "\n")

	if s.gen != nil {
		gen, err := s.gen.Generate(ctx, llm.GenerateRequest{
			System:   summarizeSystem,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: verbatim}},
		})
		if err == nil && strings.TrimSpace(gen.Text) != "" {
			return truncateTail(strings.TrimSpace(gen.Text), s.maxSummaryChars)
		}
		if err != nil {
			s.logger.Warn("Summary fold failed, keeping turns verbatim", zap.Error(err))
		}
	}
	return truncateTail(verbatim, s.maxSummaryChars)
}

func (s *Service) load(ctx context.Context, sessionID string) (sessionState, error) {
	state := sessionState{Entities: make(map[string]domain.Entity)}

	raw, err := s.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return state, nil
		}
		return state, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("Corrupt session state, starting fresh",
			zap.String("session_id", sessionID), zap.Error(err))
		return sessionState{Entities: make(map[string]domain.Entity)}, nil
	}
	if state.Entities == nil {
		state.Entities = make(map[string]domain.Entity)
	}
	return state, nil
}

func (s *Service) save(ctx context.Context, sessionID string, state sessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}
	if err := s.store.SetWithTTL(ctx, sessionKey(sessionID), data, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[sessionID] = l
	return l
}

// truncateTail keeps the last limit runes of s. The tail wins because
// recent context matters more than old.
func truncateTail(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[len(r)-limit:])
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
