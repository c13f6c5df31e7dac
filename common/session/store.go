package session

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redisWrapper "github.com/framefold/canvas/common/redis"
)

//go:embed append_event.lua
var appendEventScript string

// ErrSessionAlreadyExists is returned by Create when the session ID is taken.
var ErrSessionAlreadyExists = errors.New("session already exists")

// ErrSessionNotFound is returned when the session key does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// GetOptions filters the events returned by Get. Zero values mean no filter.
type GetOptions struct {
	AfterTimestamp  float64 // keep events strictly after this timestamp
	NumRecentEvents int     // then keep only the trailing N events
}

// Store persists sessions in Redis with TTL-bounded lifetimes. Appends run
// as a server-side script so concurrent writers never race on the
// read-modify-write of the session JSON.
type Store struct {
	redis  *redisWrapper.Client
	script *redis.Script
	ttl    time.Duration
	logger Logger
}

// NewStore creates a session store with the given TTL
func NewStore(redisClient *redisWrapper.Client, ttl time.Duration, logger Logger) *Store {
	return &Store{
		redis:  redisClient,
		script: redis.NewScript(appendEventScript),
		ttl:    ttl,
		logger: logger,
	}
}

// Create registers a new session. The ID is generated when empty. Fails with
// ErrSessionAlreadyExists if the session key is already set.
func (s *Store) Create(ctx context.Context, appName, userID, sessionID string, initialState map[string]interface{}) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if initialState == nil {
		initialState = make(map[string]interface{})
	}

	sess := &Session{
		ID:             sessionID,
		AppName:        appName,
		UserID:         userID,
		State:          initialState,
		Events:         []Event{},
		LastUpdateTime: nowTimestamp(),
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	tx := s.redis.NewTransaction()
	label := tx.SetNX(ctx, sessionKey(appName, userID, sessionID), string(raw), s.ttl)
	tx.AddToSet(ctx, listKey(appName, userID), sessionID)
	tx.Expire(ctx, listKey(appName, userID), s.ttl)
	if err := tx.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	wasSet, err := tx.GetBoolResult(label)
	if err != nil {
		return nil, fmt.Errorf("failed to read create result: %w", err)
	}
	if !wasSet {
		return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyExists, sessionID)
	}

	s.logger.Info("session created", "app_name", appName, "user_id", userID, "session_id", sessionID)
	return sess, nil
}

// Get loads a session and applies the optional event filters. The returned
// value is a private copy; mutating it does not affect the store.
func (s *Store) Get(ctx context.Context, appName, userID, sessionID string, opts GetOptions) (*Session, error) {
	raw, err := s.redis.Get(ctx, sessionKey(appName, userID, sessionID))
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}

	if opts.AfterTimestamp > 0 {
		filtered := sess.Events[:0:0]
		for _, ev := range sess.Events {
			if ev.Timestamp > opts.AfterTimestamp {
				filtered = append(filtered, ev)
			}
		}
		sess.Events = filtered
	}
	if opts.NumRecentEvents > 0 && len(sess.Events) > opts.NumRecentEvents {
		sess.Events = sess.Events[len(sess.Events)-opts.NumRecentEvents:]
	}

	return &sess, nil
}

// List returns identity metadata for every session of (appName, userID),
// most recently updated first. State and events are not loaded into the
// summaries.
func (s *Store) List(ctx context.Context, appName, userID string) ([]SessionSummary, error) {
	ids, err := s.redis.SetMembers(ctx, listKey(appName, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []SessionSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(appName, userID, id)
	}

	values, err := s.redis.GetMultiple(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	summaries := make([]SessionSummary, 0, len(values))
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			// Expired session still referenced by the list set
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			s.logger.Warn("skipping undecodable session", "key", key, "error", err)
			continue
		}
		summaries = append(summaries, SessionSummary{
			ID:             sess.ID,
			AppName:        sess.AppName,
			UserID:         sess.UserID,
			LastUpdateTime: sess.LastUpdateTime,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastUpdateTime > summaries[j].LastUpdateTime
	})
	return summaries, nil
}

// Delete removes the session key and its list-set membership atomically.
// Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, appName, userID, sessionID string) error {
	tx := s.redis.NewTransaction()
	tx.Delete(ctx, sessionKey(appName, userID, sessionID))
	tx.RemoveFromSet(ctx, listKey(appName, userID), sessionID)
	if err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	s.logger.Info("session deleted", "app_name", appName, "user_id", userID, "session_id", sessionID)
	return nil
}

// AppendEvent appends an event and folds its stateDelta into the session
// state in a single server-side script, then mirrors the change onto the
// passed session so the caller sees the new state without a re-fetch.
func (s *Store) AppendEvent(ctx context.Context, sess *Session, event Event) (*Event, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = nowTimestamp()
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := sessionKey(sess.AppName, sess.UserID, sess.ID)
	res, err := s.script.Run(ctx, s.redis.GetUnderlying(), []string{key}, string(raw), int(s.ttl.Seconds())).Int64()
	if err != nil {
		s.logger.Error("failed to append event", "session_id", sess.ID, "error", err)
		return nil, fmt.Errorf("failed to append event to session %s: %w", sess.ID, err)
	}
	if res == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}

	sess.Events = append(sess.Events, event)
	if sess.State == nil {
		sess.State = make(map[string]interface{})
	}
	applyDelta(sess.State, event.Actions.StateDelta)
	sess.LastUpdateTime = event.Timestamp

	s.logger.Debug("event appended", "session_id", sess.ID, "event_id", event.ID, "author", event.Author)
	return &event, nil
}

func sessionKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s:%s", appName, userID, sessionID)
}

func listKey(appName, userID string) string {
	return fmt.Sprintf("sessions-list:%s:%s", appName, userID)
}
