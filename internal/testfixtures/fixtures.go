package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/message-agent/internal/persistence/sqlite/migration"
)

var (
	sourceCounter  uint64
	messageCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Script fixtures ---------------------------

// ScenarioScripts returns a small self-contained history: core tables, an
// FTS table, an added column and an added index, versions 1 to 4.
func ScenarioScripts() []migration.Script {
	return []migration.Script{
		{
			Version:     1,
			Description: "create_core_tables",
			SQL: `
				CREATE TABLE notes (
					id INTEGER PRIMARY KEY,
					title TEXT NOT NULL,
					body TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     2,
			Description: "create_fts_tables",
			SQL: `
				CREATE VIRTUAL TABLE notes_fts USING fts5(title, body, content='notes', content_rowid='id');
				CREATE TRIGGER notes_fts_ai AFTER INSERT ON notes BEGIN
					INSERT INTO notes_fts(rowid, title, body) VALUES (new.id, new.title, new.body);
				END;
			`,
		},
		{
			Version:     3,
			Description: "add_column",
			SQL:         `ALTER TABLE notes ADD COLUMN pinned INTEGER NOT NULL DEFAULT 0;`,
		},
		{
			Version:     4,
			Description: "add_index",
			SQL:         `CREATE INDEX idx_notes_pinned ON notes (pinned);`,
		},
	}
}

// ScenarioCatalog builds a catalog from the first n scenario scripts.
func ScenarioCatalog(n int) *migration.Catalog {
	scripts := ScenarioScripts()
	if n < len(scripts) {
		scripts = scripts[:n]
	}
	return migration.MustCatalog(scripts...)
}

// --------------------------- Source fixtures ---------------------------

// SourceFixture represents a deterministic message source row.
type SourceFixture struct {
	ID         string
	SourceType string
	ExternalID string
	Name       string
}

// NewSourceFixture returns a deterministic chatwork source.
func NewSourceFixture() SourceFixture {
	idx := atomic.AddUint64(&sourceCounter, 1)
	return SourceFixture{
		ID:         fmt.Sprintf("source-%03d", idx),
		SourceType: "chatwork",
		ExternalID: fmt.Sprintf("room-%03d", idx),
		Name:       fmt.Sprintf("Room %03d", idx),
	}
}

// Args returns the values for an INSERT INTO sources (id, source_type, external_id, name).
func (f SourceFixture) Args() []any {
	return []any{f.ID, f.SourceType, f.ExternalID, f.Name}
}

// -------------------------- Message fixtures ---------------------------

// MessageFixture represents a deterministic message row.
type MessageFixture struct {
	ID         string
	SourceID   string
	ExternalID string
	SenderName string
	Body       string
	SentAt     time.Time
}

// MessageOption configures the generated message fixture.
type MessageOption func(*MessageFixture)

// NewMessageFixture returns a deterministic message belonging to sourceID.
func NewMessageFixture(sourceID string, opts ...MessageOption) MessageFixture {
	idx := atomic.AddUint64(&messageCounter, 1)
	fixture := MessageFixture{
		ID:         fmt.Sprintf("message-%03d", idx),
		SourceID:   sourceID,
		ExternalID: fmt.Sprintf("ext-%03d", idx),
		SenderName: fmt.Sprintf("Sender %03d", idx),
		Body:       fmt.Sprintf("message body %03d", idx),
		SentAt:     referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMessageBody overrides the generated body.
func WithMessageBody(body string) MessageOption {
	return func(f *MessageFixture) {
		f.Body = body
	}
}

// WithMessageSender overrides the generated sender name.
func WithMessageSender(name string) MessageOption {
	return func(f *MessageFixture) {
		f.SenderName = name
	}
}

// Args returns the values for an INSERT INTO messages
// (id, source_id, external_id, sender_name, body, body_plain, sent_at).
func (f MessageFixture) Args() []any {
	return []any{f.ID, f.SourceID, f.ExternalID, f.SenderName, f.Body, f.Body, f.SentAt.UTC().Format(time.RFC3339)}
}
