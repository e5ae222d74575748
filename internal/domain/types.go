package domain

import (
	"slices"
	"strconv"
)

// Document represents a single uploaded document after text extraction.
type Document struct {
	ID         string
	SourceName string
	RawText    string
}

// Chunk is a bounded contiguous slice of a document used for indexing.
// CharStart and CharEnd are character (rune) offsets into the document text.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	CharStart  int
	CharEnd    int
}

// ChunkID builds the identifier of the ordinal-th chunk of a document.
func ChunkID(documentID string, ordinal int) string {
	return documentID + ":" + strconv.Itoa(ordinal)
}

// Metadata keys stored alongside every indexed vector.
const (
	MetaText       = "text"
	MetaDocumentID = "document_id"
	MetaSource     = "source"
	MetaOrdinal    = "ordinal"
	MetaCharStart  = "char_start"
	MetaCharEnd    = "char_end"
)

// Metadata returns the index metadata describing the chunk.
func (c Chunk) Metadata(source string) map[string]string {
	return map[string]string{
		MetaText:       c.Text,
		MetaDocumentID: c.DocumentID,
		MetaSource:     source,
		MetaOrdinal:    strconv.Itoa(c.Ordinal),
		MetaCharStart:  strconv.Itoa(c.CharStart),
		MetaCharEnd:    strconv.Itoa(c.CharEnd),
	}
}

// Entry is one vector index record.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata map[string]string
}

// RetrievalResult represents a matching chunk with a similarity score.
// Higher scores are more similar.
type RetrievalResult struct {
	ChunkID  string
	Text     string
	Score    float64
	Metadata map[string]string
}

// EmbedMode selects passage or query embedding on the provider side.
type EmbedMode int

const (
	ModeDocument EmbedMode = iota
	ModeQuery
)

func (m EmbedMode) String() string {
	switch m {
	case ModeDocument:
		return "document"
	case ModeQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one role-tagged message in a dialogue.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered conversation. It is treated as an immutable value:
// Append and Prepend always return a new slice and never write into the receiver.
type History []Turn

// Append returns a new history with t added at the end.
func (h History) Append(t Turn) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, t)
}

// Prepend returns a new history with t placed before every existing turn.
func (h History) Prepend(t Turn) History {
	out := make(History, 0, len(h)+1)
	out = append(out, t)
	return append(out, h...)
}

// LastUserTurn returns the most recent user turn.
func (h History) LastUserTurn() (Turn, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleUser {
			return h[i], true
		}
	}
	return Turn{}, false
}

// Clone returns an independent copy of the history.
func (h History) Clone() History {
	return slices.Clone(h)
}
