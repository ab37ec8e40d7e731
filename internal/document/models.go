package document

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrForbidden   = errors.New("forbidden")
	ErrStorage     = errors.New("document storage unavailable")
	ErrInvalidType = errors.New("invalid diagram type")
)

// Type is the closed set of diagram kinds a document can hold.
type Type string

const (
	TypeClass     Type = "Class"
	TypeSequence  Type = "Sequence"
	TypeFlowchart Type = "Flowchart"
	TypeER        Type = "ER"
	TypeUseCase   Type = "Use Case"
	TypeActivity  Type = "Activity"
)

var types = []Type{TypeClass, TypeSequence, TypeFlowchart, TypeER, TypeUseCase, TypeActivity}

// ParseType validates s against the closed set. An empty value defaults to Class.
func ParseType(s string) (Type, error) {
	if s == "" {
		return TypeClass, nil
	}
	for _, t := range types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrInvalidType
}

// Document is a shared diagram. Content is opaque to the service.
// Owner is set at creation and never changes.
type Document struct {
	ID            string    `json:"id" bson:"_id"`
	Name          string    `json:"name" bson:"name"`
	Type          Type      `json:"type" bson:"type"`
	Content       string    `json:"content" bson:"content"`
	Owner         string    `json:"owner" bson:"owner"`
	Collaborators []string  `json:"collaborators" bson:"collaborators"`
	LastModified  time.Time `json:"lastModified" bson:"lastModified"`
}

// Clone returns a deep copy safe to hand out of a repository.
func (d *Document) Clone() *Document {
	c := *d
	c.Collaborators = append([]string(nil), d.Collaborators...)
	return &c
}
