// Package collection loads the note, card, model and deck graph from a YAML
// or JSON file together with a media directory.
package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/deckdoctor/internal/apperr"
	"github.com/starford/deckdoctor/internal/media"
	"github.com/starford/deckdoctor/internal/models"
	"github.com/starford/deckdoctor/internal/render"
)

// document is the on-disk layout. JSON files parse through the YAML decoder.
type document struct {
	Models []models.Model `yaml:"models"`
	Decks  []models.Deck  `yaml:"decks"`
	Notes  []models.Note  `yaml:"notes"`
	Cards  []models.Card  `yaml:"cards"`
}

// Collection is an immutable snapshot of a loaded file.
type Collection struct {
	path  string
	media media.Store

	models map[int64]*models.Model
	decks  map[int64]*models.Deck
	notes  map[int64]*models.Note
	cards  map[int64]models.Card
	order  []int64 // card ids in file order
}

// Load reads path and the media files under mediaDir. An empty mediaDir
// defaults to "<dir>/media" next to the collection file; a missing media
// directory is not an error.
func Load(path, mediaDir string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collection: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("collection: parse %s: %w", path, err)
	}

	if mediaDir == "" {
		mediaDir = filepath.Join(filepath.Dir(path), "media")
	}
	store, err := loadMedia(mediaDir)
	if err != nil {
		return nil, err
	}

	c, err := build(doc)
	if err != nil {
		return nil, fmt.Errorf("collection: %s: %w", path, err)
	}
	c.path = path
	c.media = store
	return c, nil
}

func build(doc document) (*Collection, error) {
	c := &Collection{
		models: make(map[int64]*models.Model, len(doc.Models)),
		decks:  make(map[int64]*models.Deck, len(doc.Decks)),
		notes:  make(map[int64]*models.Note, len(doc.Notes)),
		cards:  make(map[int64]models.Card, len(doc.Cards)),
	}

	for i := range doc.Models {
		m := &doc.Models[i]
		if m.Type == "" {
			m.Type = models.ModelStandard
		}
		if err := validateModel(m); err != nil {
			return nil, fmt.Errorf("model %d: %w", m.ID, err)
		}
		if _, dup := c.models[m.ID]; dup {
			return nil, fmt.Errorf("model %d: %w", m.ID, apperr.ErrAlreadyExists)
		}
		c.models[m.ID] = m
	}
	for i := range doc.Decks {
		d := &doc.Decks[i]
		if _, dup := c.decks[d.ID]; dup {
			return nil, fmt.Errorf("deck %d: %w", d.ID, apperr.ErrAlreadyExists)
		}
		c.decks[d.ID] = d
	}
	for i := range doc.Notes {
		n := &doc.Notes[i]
		if _, ok := c.models[n.ModelID]; !ok {
			return nil, fmt.Errorf("note %d: model %d: %w", n.ID, n.ModelID, apperr.ErrNotFound)
		}
		if _, dup := c.notes[n.ID]; dup {
			return nil, fmt.Errorf("note %d: %w", n.ID, apperr.ErrAlreadyExists)
		}
		c.notes[n.ID] = n
	}
	for _, card := range doc.Cards {
		if _, ok := c.notes[card.NoteID]; !ok {
			return nil, fmt.Errorf("card %d: note %d: %w", card.ID, card.NoteID, apperr.ErrNotFound)
		}
		if _, ok := c.decks[card.DeckID]; !ok {
			return nil, fmt.Errorf("card %d: deck %d: %w", card.ID, card.DeckID, apperr.ErrNotFound)
		}
		if _, dup := c.cards[card.ID]; dup {
			return nil, fmt.Errorf("card %d: %w", card.ID, apperr.ErrAlreadyExists)
		}
		c.cards[card.ID] = card
		c.order = append(c.order, card.ID)
	}
	return c, nil
}

func validateModel(m *models.Model) error {
	err := validation.ValidateStruct(m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.Type, validation.In(models.ModelStandard, models.ModelCloze)),
		validation.Field(&m.Fields, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if !m.IsCloze() && len(m.Templates) == 0 {
		return fmt.Errorf("%w: standard model needs at least one template", apperr.ErrInvalidInput)
	}
	return nil
}

func loadMedia(dir string) (media.Store, error) {
	store := media.Store{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("collection: read media dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("collection: read media %s: %w", e.Name(), err)
		}
		store[e.Name()] = data
	}
	return store, nil
}

// Path is the file the collection was loaded from.
func (c *Collection) Path() string { return c.path }

// File is the base name of Path, used as the legacy cache scope.
func (c *Collection) File() string { return filepath.Base(c.path) }

// Media returns the media blobs keyed by filename.
func (c *Collection) Media() media.Store { return c.media }

// Card returns a card by id.
func (c *Collection) Card(id int64) (models.Card, error) {
	card, ok := c.cards[id]
	if !ok {
		return models.Card{}, fmt.Errorf("card %d: %w", id, apperr.ErrNotFound)
	}
	return card, nil
}

// Note returns a note by id.
func (c *Collection) Note(id int64) (*models.Note, error) {
	n, ok := c.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// Model returns a model by id.
func (c *Collection) Model(id int64) (*models.Model, error) {
	m, ok := c.models[id]
	if !ok {
		return nil, fmt.Errorf("model %d: %w", id, apperr.ErrNotFound)
	}
	return m, nil
}

// Deck returns a deck by id.
func (c *Collection) Deck(id int64) (*models.Deck, error) {
	d, ok := c.decks[id]
	if !ok {
		return nil, fmt.Errorf("deck %d: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// DeckByName finds a deck by exact name, case-insensitively.
func (c *Collection) DeckByName(name string) (*models.Deck, error) {
	for _, d := range c.decks {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("deck %q: %w", name, apperr.ErrNotFound)
}

// Decks lists all decks sorted by name.
func (c *Collection) Decks() []models.Deck {
	out := make([]models.Deck, 0, len(c.decks))
	for _, d := range c.decks {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CardsInDeck returns the deck's cards in file order.
func (c *Collection) CardsInDeck(deckID int64) []models.Card {
	var out []models.Card
	for _, id := range c.order {
		if card := c.cards[id]; card.DeckID == deckID {
			out = append(out, card)
		}
	}
	return out
}

// CardContext bundles a card with its note, model and deck.
type CardContext struct {
	Card  models.Card
	Note  *models.Note
	Model *models.Model
	Deck  *models.Deck
}

// Context resolves everything needed to render or analyze a card.
func (c *Collection) Context(cardID int64) (CardContext, error) {
	card, err := c.Card(cardID)
	if err != nil {
		return CardContext{}, err
	}
	note := c.notes[card.NoteID]
	return CardContext{Card: card, Note: note, Model: c.models[note.ModelID], Deck: c.decks[card.DeckID]}, nil
}

// Render renders a card with media resolved.
func (c *Collection) Render(cardID int64) (models.RenderedCard, error) {
	cc, err := c.Context(cardID)
	if err != nil {
		return models.RenderedCard{}, err
	}
	return render.Render(cc.Card, cc.Note, cc.Model, cc.Deck, c.media), nil
}
