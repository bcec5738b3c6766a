// Package testutil provides shared test helpers for collections, caches and
// provider stubs.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/deckdoctor/internal/cache"
	"github.com/starford/deckdoctor/internal/kv"
)

// CollectionYAML is a small two-deck collection. Deck 1 ("Geography") holds
// cards 1-3, deck 2 ("Biology") holds the cloze cards 10 and 11.
const CollectionYAML = `
models:
  - id: 1
    name: Basic
    fields: [Front, Back]
    templates:
      - name: Card 1
        front: "{{Front}}"
        back: "{{FrontSide}}<hr id=answer>{{Back}}"
  - id: 2
    name: Cloze
    type: cloze
    fields: [Text, Extra]
decks:
  - id: 1
    name: Geography
  - id: 2
    name: Biology
notes:
  - id: 1
    model_id: 1
    fields: ["Capital of France?", "Paris <img src=\"paris.png\">"]
  - id: 2
    model_id: 1
    fields: ["Capital of Spain?", "Madrid"]
  - id: 3
    model_id: 1
    fields: ["Capital of Italy?", "Rome"]
  - id: 4
    model_id: 2
    fields: ["The {{c1::mitochondria}} is the {{c2::powerhouse}} of the cell", ""]
cards:
  - {id: 1, note_id: 1, deck_id: 1}
  - {id: 2, note_id: 2, deck_id: 1}
  - {id: 3, note_id: 3, deck_id: 1}
  - {id: 10, note_id: 4, deck_id: 2, ord: 0}
  - {id: 11, note_id: 4, deck_id: 2, ord: 1}
`

// AnalysisJSON is a well-formed provider reply with one suggested card.
const AnalysisJSON = `{"feedback":{"isUnambiguous":true,"isAtomic":true,"isRecognizable":true,"isActiveRecall":true,"overallScore":8,"issues":["could add context"],"suggestions":[],"reasoning":"fine"},"suggestedCards":[{"type":"basic","fields":[{"name":"Front","value":"Q"},{"name":"Back","value":"A"}],"explanation":"variant"}],"deleteOriginal":false}`

// CoverageJSON is a well-formed deck coverage reply.
const CoverageJSON = `{"summary":"Covers European capitals.","knowledgeCoverage":{"overallCoverage":"fair","coverageScore":6,"summary":"Only three capitals.","coveredTopics":["capitals"],"gaps":[{"topic":"Germany","importance":"high","description":"missing"}],"recommendations":["add more countries"]},"suggestedCards":[]}`

// Collection writes CollectionYAML and a media directory into a temp dir and
// returns the collection path.
func Collection(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "collection.yaml")
	if err := os.WriteFile(path, []byte(CollectionYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "media"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "media", "paris.png"), []byte("\x89PNG\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Cache creates a cache over a temporary SQLite database that is cleaned up
// automatically.
func Cache(t *testing.T) *cache.Cache {
	t.Helper()
	dbFile, err := os.CreateTemp("", "deckdoctor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := kv.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return cache.New(store)
}

// Caller is a scripted provider. Reply picks the response per call; Gate,
// when set, blocks every call until it is closed.
type Caller struct {
	Reply func(system, user string) (string, error)
	Gate  chan struct{}

	mu    sync.Mutex
	calls int
}

// Call implements llm.Caller.
func (c *Caller) Call(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Gate != nil {
		<-c.Gate
	}
	return c.Reply(system, user)
}

// Calls returns how many calls were made.
func (c *Caller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FixedCaller answers every call with reply.
func FixedCaller(reply string) *Caller {
	return &Caller{Reply: func(string, string) (string, error) { return reply, nil }}
}
