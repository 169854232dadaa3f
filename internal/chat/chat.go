// Package chat validates client intents and applies them to the event log and
// the presence set.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/nodechat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	MaxNameLength     = 64
	MaxCommentLength  = 1000
	MaxClientIDLength = 64
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type EventLog interface {
	Append(ctx context.Context, ev types.Event) (int64, error)
	ReadSince(ctx context.Context, cursor int64) ([]types.Event, int64, error)
	Recent(ctx context.Context, n int) ([]types.Event, error)
}

type PresenceSet interface {
	AddUser(ctx context.Context, name string) ([]string, error)
	RemoveUser(ctx context.Context, name string) ([]string, error)
	List(ctx context.Context) ([]string, error)
}

type Service struct {
	events       EventLog
	presence     PresenceSet
	historyLimit int
	now          func() time.Time
	newID        func() (string, error)
}

func NewService(events EventLog, presence PresenceSet, historyLimit int) *Service {
	return &Service{
		events:       events,
		presence:     presence,
		historyLimit: historyLimit,
		now:          time.Now,
		newID:        shortid.Generate,
	}
}

// Join adds name to the presence set and returns the users now present.
func (s *Service) Join(ctx context.Context, name string) ([]string, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	return s.presence.AddUser(ctx, name)
}

// Leave removes name from the presence set and returns the users now present.
func (s *Service) Leave(ctx context.Context, name string) ([]string, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	return s.presence.RemoveUser(ctx, name)
}

// Post appends a chat message and returns its event id. A message without a
// client id is given a generated one.
func (s *Service) Post(ctx context.Context, name, comment, clientID string) (int64, error) {
	name, err := validateName(name)
	if err != nil {
		return 0, err
	}

	if strings.TrimSpace(comment) == "" {
		return 0, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if !utf8.ValidString(comment) {
		return 0, &ValidationError{Field: "message", Reason: "must be valid UTF-8"}
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return 0, &ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", MaxCommentLength)}
	}

	if utf8.RuneCountInString(clientID) > MaxClientIDLength {
		return 0, &ValidationError{Field: "id", Reason: fmt.Sprintf("must be at most %d characters", MaxClientIDLength)}
	}
	if clientID == "" {
		clientID, err = s.newID()
		if err != nil {
			return 0, fmt.Errorf("generate message id: %w", err)
		}
	}

	return s.events.Append(ctx, types.NewChatEvent(name, comment, clientID, s.now()))
}

// Log returns the events after since together with the present users. With
// no cursor it returns the most recent history instead.
func (s *Service) Log(ctx context.Context, since *int64) (types.Snapshot, error) {
	var (
		chats []types.Event
		err   error
	)
	if since == nil {
		chats, err = s.events.Recent(ctx, s.historyLimit)
	} else {
		chats, _, err = s.events.ReadSince(ctx, *since)
	}
	if err != nil {
		return types.Snapshot{}, err
	}

	users, err := s.presence.List(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}

	return types.NewSnapshot(chats, users), nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !utf8.ValidString(name) {
		return "", &ValidationError{Field: "name", Reason: "must be valid UTF-8"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	return name, nil
}
