// Package chat persists per-visitor AI chat sessions. Each visitor owns one
// JSON document in Redis holding every session; the document is rewritten
// after every mutation and removed entirely when the last session is deleted.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cacheredis "probable/internal/cache/redis"
	"probable/internal/insights"
	"probable/internal/market"
)

const (
	keyPrefix = "probable:chat:sessions:"

	// Document schema version. Version 1 was a bare JSON array (of sessions,
	// or in the earliest deployments of messages); version 2 wraps sessions
	// in an envelope so future migrations have somewhere to hang metadata.
	schemaVersion = 2

	maxTitleLen = 30

	errorReply     = "Sorry, I encountered an error. Please try again."
	noMarketsReply = "I couldn't find any relevant markets for that query."
)

var ErrSessionNotFound = errors.New("chat: session not found")

// KV is the subset of the Redis client the store needs.
// Mutations go through Update so two concurrent requests from the same
// visitor cannot clobber each other's write of the shared document.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current string, exists bool) (next string, del bool, err error)) error
}

// Asker produces an AI answer for a question. Satisfied by *insights.Client.
type Asker interface {
	Ask(ctx context.Context, question string) (*insights.InsightsResult, error)
}

type Message struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	Timestamp  int64              `json:"timestamp"`
	Markets    []market.Card      `json:"markets,omitempty"`
	Aggregates *market.Aggregates `json:"aggregates,omitempty"`
	Failed     bool               `json:"failed,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

type document struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
}

// Group is a recency bucket of sessions for the sidebar.
type Group struct {
	Label    string    `json:"label"`
	Sessions []Session `json:"sessions"`
}

type Store struct {
	kv     KV
	asker  Asker
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(kv KV, asker Asker, logger *zap.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:     kv,
		asker:  asker,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

func visitorKey(visitorID string) string {
	return keyPrefix + visitorID
}

// load reads and migrates the visitor's document. A missing key or an
// unreadable document yields an empty one; stored chat history is never worth
// failing a request over.
func (s *Store) load(ctx context.Context, visitorID string) document {
	raw, err := s.kv.Get(ctx, visitorKey(visitorID))
	if err != nil {
		if !errors.Is(err, cacheredis.ErrNotFound) {
			s.logger.Warn("failed to load chat sessions", zap.String("visitor", visitorID), zap.Error(err))
		}
		return document{Version: schemaVersion}
	}
	doc, err := decodeDocument([]byte(raw), s.now())
	if err != nil {
		s.logger.Warn("discarding unreadable chat document", zap.String("visitor", visitorID), zap.Error(err))
		return document{Version: schemaVersion}
	}
	return doc
}

// decodeDocument accepts the current envelope and both legacy layouts: a bare
// array of sessions, and the oldest layout of a bare array of messages (no id
// on the first element). Legacy messages become a single synthesized session.
func decodeDocument(raw []byte, now time.Time) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Version > 0 {
		return doc, nil
	}

	var sessions []Session
	if err := json.Unmarshal(raw, &sessions); err == nil {
		if len(sessions) == 0 || sessions[0].ID != "" {
			return document{Version: schemaVersion, Sessions: sessions}, nil
		}
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return document{}, fmt.Errorf("chat: unrecognized document layout: %w", err)
	}
	if len(messages) == 0 {
		return document{Version: schemaVersion}, nil
	}
	ts := now.UnixMilli()
	return document{
		Version: schemaVersion,
		Sessions: []Session{{
			ID:        fmt.Sprintf("legacy-%d", ts),
			Title:     "Previous Chat",
			Timestamp: ts,
			Messages:  messages,
		}},
	}, nil
}

// mutate applies fn to the visitor's document atomically: the KV retries fn
// against the fresh value when another request wrote in between, so fn must
// be side-effect free. An empty resulting document deletes the key.
func (s *Store) mutate(ctx context.Context, visitorID string, fn func(doc *document) error) error {
	return s.kv.Update(ctx, visitorKey(visitorID), s.ttl, func(current string, exists bool) (string, bool, error) {
		doc := document{Version: schemaVersion}
		if exists {
			decoded, err := decodeDocument([]byte(current), s.now())
			if err != nil {
				s.logger.Warn("discarding unreadable chat document", zap.String("visitor", visitorID), zap.Error(err))
			} else {
				doc = decoded
			}
		}
		if err := fn(&doc); err != nil {
			return "", false, err
		}
		if len(doc.Sessions) == 0 {
			return "", true, nil
		}
		doc.Version = schemaVersion
		raw, err := json.Marshal(doc)
		if err != nil {
			return "", false, fmt.Errorf("chat: encode sessions: %w", err)
		}
		return string(raw), false, nil
	})
}

// List returns all sessions, newest first.
func (s *Store) List(ctx context.Context, visitorID string) ([]Session, error) {
	doc := s.load(ctx, visitorID)
	sessions := doc.Sessions
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp > sessions[j].Timestamp
	})
	return sessions, nil
}

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, visitorID, sessionID string) (*Session, error) {
	doc := s.load(ctx, visitorID)
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == sessionID {
			return &doc.Sessions[i], nil
		}
	}
	return nil, ErrSessionNotFound
}

// Delete removes a session; deleting the last one removes the whole document.
func (s *Store) Delete(ctx context.Context, visitorID, sessionID string) error {
	return s.mutate(ctx, visitorID, func(doc *document) error {
		kept := doc.Sessions[:0]
		found := false
		for _, sess := range doc.Sessions {
			if sess.ID == sessionID {
				found = true
				continue
			}
			kept = append(kept, sess)
		}
		if !found {
			return ErrSessionNotFound
		}
		doc.Sessions = kept
		return nil
	})
}

// Ask records the user's question in the addressed session (creating one when
// sessionID is empty), asks the insights backend, and records the reply. An
// upstream failure still persists both messages, with a canned error reply.
func (s *Store) Ask(ctx context.Context, visitorID, sessionID, question string) (*Session, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("chat: question is required")
	}

	// The upstream call happens once, before the document transaction: the
	// mutation below may be retried against a fresh document and must stay
	// side-effect free.
	userMsg := Message{
		Role:      "user",
		Content:   question,
		Timestamp: s.now().UnixMilli(),
	}
	reply := s.answer(ctx, question)
	newID := uuid.NewString()

	var out Session
	err := s.mutate(ctx, visitorID, func(doc *document) error {
		var sess *Session
		if sessionID != "" {
			for i := range doc.Sessions {
				if doc.Sessions[i].ID == sessionID {
					sess = &doc.Sessions[i]
					break
				}
			}
			if sess == nil {
				return ErrSessionNotFound
			}
		} else {
			doc.Sessions = append(doc.Sessions, Session{
				ID:        newID,
				Title:     sessionTitle(question),
				Timestamp: s.now().UnixMilli(),
			})
			sess = &doc.Sessions[len(doc.Sessions)-1]
		}
		sess.Messages = append(sess.Messages, userMsg, reply)
		out = *sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) answer(ctx context.Context, question string) Message {
	msg := Message{Role: "assistant", Timestamp: s.now().UnixMilli()}
	res, err := s.asker.Ask(ctx, question)
	if err != nil {
		s.logger.Warn("insights request failed", zap.Error(err))
		msg.Content = errorReply
		msg.Failed = true
		return msg
	}
	if len(res.Markets) == 0 {
		msg.Content = noMarketsReply
		return msg
	}
	msg.Content = res.Summary
	if msg.Content == "" && len(res.Insights) > 0 {
		msg.Content = strings.Join(res.Insights, "\n")
	}
	msg.Markets = market.Enrich(res.Markets, res.Research, s.now())
	if res.Aggregates != nil {
		msg.Aggregates = res.Aggregates
	} else {
		agg := market.Consensus(res.Markets)
		msg.Aggregates = &agg
	}
	return msg
}

// sessionTitle derives the sidebar title from the opening question.
func sessionTitle(question string) string {
	runes := []rune(question)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "..."
	}
	return question
}

// GroupByRecency buckets sessions for the sidebar relative to the local
// midnight of now. Sessions keep their order within each bucket.
func GroupByRecency(sessions []Session, now time.Time) []Group {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := midnight.AddDate(0, 0, -1)
	weekAgo := midnight.AddDate(0, 0, -7)

	buckets := map[string][]Session{}
	for _, sess := range sessions {
		ts := time.UnixMilli(sess.Timestamp).In(now.Location())
		var label string
		switch {
		case !ts.Before(midnight):
			label = "Today"
		case !ts.Before(yesterday):
			label = "Yesterday"
		case !ts.Before(weekAgo):
			label = "Previous 7 Days"
		default:
			label = "Older"
		}
		buckets[label] = append(buckets[label], sess)
	}

	var groups []Group
	for _, label := range []string{"Today", "Yesterday", "Previous 7 Days", "Older"} {
		if sessions, ok := buckets[label]; ok {
			groups = append(groups, Group{Label: label, Sessions: sessions})
		}
	}
	return groups
}
