package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventChat     EventKind = "chat"
	EventPresence EventKind = "presence"
)

type PresenceState string

const (
	PresenceJoined       PresenceState = "joined"
	PresenceDisconnected PresenceState = "disconnected"
)

// Event is one entry of the chat log. ID is assigned by the log when the
// event is appended and is zero before that.
type Event struct {
	ID       int64
	Kind     EventKind
	User     string
	Time     int64 // epoch milliseconds
	Comment  string
	ClientID string
	State    PresenceState
}

func NewChatEvent(user, comment, clientID string, at time.Time) Event {
	return Event{
		Kind:     EventChat,
		User:     user,
		Time:     at.UnixMilli(),
		Comment:  comment,
		ClientID: clientID,
	}
}

func NewPresenceEvent(user string, state PresenceState, at time.Time) Event {
	return Event{
		Kind:  EventPresence,
		User:  user,
		Time:  at.UnixMilli(),
		State: state,
	}
}

// Record is the JSON shape of an event. Type is "chat" for chat events and
// the presence state for presence events.
type Record struct {
	User     string `json:"user"`
	Comment  string `json:"comment,omitempty"`
	Time     int64  `json:"time"`
	ClientID string `json:"id,omitempty"`
	Type     string `json:"type"`
}

func (e Event) Record() Record {
	r := Record{
		User: e.User,
		Time: e.Time,
	}
	switch e.Kind {
	case EventChat:
		r.Type = string(EventChat)
		r.Comment = e.Comment
		r.ClientID = e.ClientID
	case EventPresence:
		r.Type = string(e.State)
	}
	return r
}

// Event converts r back into an event. ok is false when Type is not a known
// event type.
func (r Record) Event(id int64) (ev Event, ok bool) {
	ev = Event{
		ID:   id,
		User: r.User,
		Time: r.Time,
	}
	switch r.Type {
	case string(EventChat):
		ev.Kind = EventChat
		ev.Comment = r.Comment
		ev.ClientID = r.ClientID
	case string(PresenceJoined), string(PresenceDisconnected):
		ev.Kind = EventPresence
		ev.State = PresenceState(r.Type)
	default:
		return Event{}, false
	}
	return ev, true
}

type eventJSON struct {
	Seq int64 `json:"seq"`
	Record
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Seq: e.ID, Record: e.Record()})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var v eventJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ev, ok := v.Record.Event(v.Seq)
	if !ok {
		return fmt.Errorf("unknown event type %q", v.Type)
	}
	*e = ev
	return nil
}

// Snapshot is what clients receive on every poll tick and from the log
// query: events in ascending id order and the users currently present.
type Snapshot struct {
	Chats []Event  `json:"chats"`
	Users []string `json:"users"`
}

func NewSnapshot(chats []Event, users []string) Snapshot {
	if chats == nil {
		chats = []Event{}
	}
	if users == nil {
		users = []string{}
	}
	return Snapshot{Chats: chats, Users: users}
}
