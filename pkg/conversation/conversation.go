// Package conversation is the sole writer of the transcript and metadata
// for one conversation directory. It loads both files into memory once and
// serves every subsequent read from that in-memory mirror; every mutation
// goes through its methods so the two on-disk files never drift from what
// callers believe is true.
package conversation

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/storage"
	"github.com/linustan/komatachi/pkg/transcript"
)

const (
	metadataFile   = "metadata.json"
	transcriptFile = "transcript.jsonl"
)

// Metadata is the persisted envelope around a conversation.
type Metadata struct {
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
	CompactionCount int     `json:"compactionCount"`
	Model           *string `json:"model"`
}

// MetadataPatch merges only the fields it sets; CreatedAt can never be
// patched — it is fixed at initialization.
type MetadataPatch struct {
	CompactionCount *int
	Model           *string
}

// Store is the in-memory mirror of one conversation's transcript and
// metadata, backed by a storage.Storage capability.
type Store struct {
	storage *storage.Storage
	dir     string // subdirectory name, validated to prevent traversal

	loaded   bool
	metadata Metadata
	messages []transcript.Message
}

// Now is overridable in tests; production code always calls time.Now.
var Now = func() time.Time { return time.Now() }

func nowMillis() int64 { return Now().UnixMilli() }

// New roots a conversation Store at <dataDir>/<id>/. id must be a plain
// path-safe component (no separators, no "..") — it becomes a directory
// name directly, mirroring the session-key validation in the store this is
// grounded on.
func New(s *storage.Storage, id string) (*Store, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || !filepath.IsLocal(id) {
		return nil, komatachierr.New(komatachierr.IO, "invalid conversation id: "+id)
	}
	return &Store{storage: s, dir: id}, nil
}

func (c *Store) path(name string) string {
	return filepath.Join(c.dir, name)
}

// Initialize creates fresh metadata (now/now/0/model) and an empty
// transcript. Fails AlreadyExists if metadata.json is already present —
// callers must Load an existing conversation instead.
func (c *Store) Initialize(model *string) error {
	if c.storage.Exists(c.path(metadataFile)) {
		return komatachierr.New(komatachierr.AlreadyExists, "conversation already initialized").WithPath(c.path(metadataFile))
	}

	now := nowMillis()
	meta := Metadata{CreatedAt: now, UpdatedAt: now, CompactionCount: 0, Model: model}
	if err := c.storage.WriteJSON(c.path(metadataFile), meta); err != nil {
		return err
	}
	if err := storage.WriteJSONL[transcript.Message](c.storage, c.path(transcriptFile), nil); err != nil {
		return err
	}

	c.metadata = meta
	c.messages = nil
	c.loaded = true
	return nil
}

// Load reads metadata.json and transcript.jsonl from disk into memory.
// Subsequent reads serve from memory until the next Load.
func (c *Store) Load() (Metadata, []transcript.Message, error) {
	meta, err := storage.ReadJSON[Metadata](c.storage, c.path(metadataFile))
	if err != nil {
		return Metadata{}, nil, err
	}
	msgs, err := storage.ReadAllJSONL[transcript.Message](c.storage, c.path(transcriptFile))
	if err != nil {
		return Metadata{}, nil, err
	}

	c.metadata = meta
	c.messages = msgs
	c.loaded = true
	return meta, cloneMessages(msgs), nil
}

// AppendMessage appends m to disk first, then reflects it in memory and
// advances metadata.updatedAt, then rewrites metadata.json. A crash between
// the disk append and the metadata rewrite is acceptable: the transcript is
// the source of truth and metadata.updatedAt is merely advisory.
func (c *Store) AppendMessage(m transcript.Message) error {
	if !c.loaded {
		return komatachierr.New(komatachierr.NotLoaded, "conversation not loaded")
	}

	if err := c.storage.AppendJSONL(c.path(transcriptFile), m); err != nil {
		return err
	}

	c.messages = append(c.messages, m)
	c.metadata.UpdatedAt = nowMillis()
	return c.storage.WriteJSON(c.path(metadataFile), c.metadata)
}

// ReplaceTranscript atomically rewrites transcript.jsonl with ms, then
// replaces the in-memory vector (a defensive copy — the caller's slice is
// never retained) and advances metadata.updatedAt. Used only by compaction.
func (c *Store) ReplaceTranscript(ms []transcript.Message) error {
	if !c.loaded {
		return komatachierr.New(komatachierr.NotLoaded, "conversation not loaded")
	}

	if err := storage.WriteJSONL(c.storage, c.path(transcriptFile), ms); err != nil {
		return err
	}

	c.messages = cloneMessages(ms)
	c.metadata.UpdatedAt = nowMillis()
	return c.storage.WriteJSON(c.path(metadataFile), c.metadata)
}

// UpdateMetadata merges the given patch into the in-memory and on-disk
// metadata. CreatedAt is never touched; UpdatedAt is always set to now.
func (c *Store) UpdateMetadata(patch MetadataPatch) error {
	if !c.loaded {
		return komatachierr.New(komatachierr.NotLoaded, "conversation not loaded")
	}

	if patch.CompactionCount != nil {
		c.metadata.CompactionCount = *patch.CompactionCount
	}
	if patch.Model != nil {
		c.metadata.Model = patch.Model
	}
	c.metadata.UpdatedAt = nowMillis()
	return c.storage.WriteJSON(c.path(metadataFile), c.metadata)
}

// GetMessages returns a defensive copy of the in-memory transcript.
func (c *Store) GetMessages() ([]transcript.Message, error) {
	if !c.loaded {
		return nil, komatachierr.New(komatachierr.NotLoaded, "conversation not loaded")
	}
	return cloneMessages(c.messages), nil
}

// GetMetadata returns the in-memory metadata.
func (c *Store) GetMetadata() (Metadata, error) {
	if !c.loaded {
		return Metadata{}, komatachierr.New(komatachierr.NotLoaded, "conversation not loaded")
	}
	return c.metadata, nil
}

func cloneMessages(ms []transcript.Message) []transcript.Message {
	if ms == nil {
		return nil
	}
	out := make([]transcript.Message, len(ms))
	copy(out, ms)
	return out
}
