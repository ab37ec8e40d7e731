package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogotex/diagramsync/internal/identity"
)

// ErrBadMessage is returned by DecodeInbound for payloads outside the closed message set.
var ErrBadMessage = errors.New("malformed message")

// Wire type tags.
const (
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeUpdate    = "update"
	TypeAuth      = "auth"
	TypeJoined    = "joined"
	TypeLeft      = "left"
	TypeForbidden = "forbidden"
	TypeError     = "error"
)

// legacy event names sent by the browser socket client
var inboundAliases = map[string]string{
	"join_diagram":   TypeJoin,
	"leave_diagram":  TypeLeave,
	"diagram_update": TypeUpdate,
}

// Inbound is a validated client-to-server message: Join, Leave, Update or Auth.
type Inbound interface{ inbound() }

type Join struct{ DocumentID string }
type Leave struct{ DocumentID string }
type Update struct {
	DocumentID string
	Content    string
}

// Auth carries the credential when it was not supplied with the upgrade request.
type Auth struct{ Token string }

func (Join) inbound()   {}
func (Leave) inbound()  {}
func (Update) inbound() {}
func (Auth) inbound()   {}

// Outbound is a server-to-client message.
type Outbound interface{ outbound() envelope }

type Joined struct {
	DocumentID string
	User       identity.Identity
}

type Left struct {
	DocumentID string
	User       identity.Identity
}

type Updated struct {
	DocumentID   string
	Content      string
	LastModified time.Time
}

type Forbidden struct {
	DocumentID string
	Reason     string
}

// Error codes used in Error messages.
const (
	CodeNotFound        = "not_found"
	CodeStorage         = "storage_failure"
	CodeBadMessage      = "bad_message"
	CodeRateLimited     = "rate_limited"
	CodeUnauthenticated = "unauthenticated"
)

type Error struct {
	DocumentID string
	Code       string
	Reason     string
}

type envelope struct {
	Type         string             `json:"type"`
	DocumentID   string             `json:"documentId,omitempty"`
	DiagramID    string             `json:"diagramId,omitempty"`
	Content      *string            `json:"content,omitempty"`
	Token        string             `json:"token,omitempty"`
	User         *identity.Identity `json:"user,omitempty"`
	LastModified *time.Time         `json:"lastModified,omitempty"`
	Code         string             `json:"code,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

func (m Joined) outbound() envelope {
	u := m.User
	return envelope{Type: TypeJoined, DocumentID: m.DocumentID, User: &u}
}

func (m Left) outbound() envelope {
	u := m.User
	return envelope{Type: TypeLeft, DocumentID: m.DocumentID, User: &u}
}

func (m Updated) outbound() envelope {
	c, ts := m.Content, m.LastModified.UTC()
	return envelope{Type: TypeUpdate, DocumentID: m.DocumentID, Content: &c, LastModified: &ts}
}

func (m Forbidden) outbound() envelope {
	return envelope{Type: TypeForbidden, DocumentID: m.DocumentID, Reason: m.Reason}
}

func (m Error) outbound() envelope {
	return envelope{Type: TypeError, DocumentID: m.DocumentID, Code: m.Code, Reason: m.Reason}
}

// Encode renders an outbound message as its JSON wire form.
func Encode(m Outbound) ([]byte, error) {
	return json.Marshal(m.outbound())
}

// DecodeInbound parses and validates a client frame. Unknown types, missing
// document ids and missing tokens are rejected with ErrBadMessage.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	typ := env.Type
	if alias, ok := inboundAliases[typ]; ok {
		typ = alias
	}
	docID := strings.TrimSpace(env.DocumentID)
	if docID == "" {
		docID = strings.TrimSpace(env.DiagramID)
	}
	switch typ {
	case TypeAuth:
		if strings.TrimSpace(env.Token) == "" {
			return nil, fmt.Errorf("%w: auth without token", ErrBadMessage)
		}
		return Auth{Token: strings.TrimSpace(env.Token)}, nil
	case TypeJoin, TypeLeave, TypeUpdate:
		if docID == "" {
			return nil, fmt.Errorf("%w: %s without documentId", ErrBadMessage, typ)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadMessage, env.Type)
	}
	switch typ {
	case TypeJoin:
		return Join{DocumentID: docID}, nil
	case TypeLeave:
		return Leave{DocumentID: docID}, nil
	}
	if env.Content == nil {
		return nil, fmt.Errorf("%w: update without content", ErrBadMessage)
	}
	return Update{DocumentID: docID, Content: *env.Content}, nil
}
