// Package cache persists per-card analysis results keyed by note content.
//
// Two tiers live side by side. The global tier is keyed by a hash of the deck
// name and field content, so identical cards share a result across collection
// files. The legacy tier is keyed by (file, card id) and carries the content
// hash for verification; it is kept for stores written by older versions and
// the global tier is always consulted first.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/deckdoctor/internal/checksum"
	"github.com/starford/deckdoctor/internal/kv"
	"github.com/starford/deckdoctor/internal/models"
)

// KeyPrefix is the prefix of every key the cache writes.
const KeyPrefix = "analysis/"

const (
	globalKey    = KeyPrefix + "global"
	legacyPrefix = KeyPrefix + "legacy/"
)

// Tier names the tier a hit came from.
type Tier string

const (
	TierNone   Tier = ""
	TierGlobal Tier = "global"
	TierLegacy Tier = "legacy"
)

// Lookup identifies a card's content for cache access.
type Lookup struct {
	Scope  string // deck name
	File   string // collection file the card was loaded from
	CardID int64
	Fields []models.Field
}

type globalRecord struct {
	CacheKey string                    `json:"cacheKey"`
	DeckName string                    `json:"deckName"`
	Result   *models.LLMAnalysisResult `json:"result"`
	CachedAt time.Time                 `json:"cachedAt"`
}

type legacyRecord struct {
	CardID      int64                     `json:"cardId"`
	ContentHash string                    `json:"contentHash"`
	Result      *models.LLMAnalysisResult `json:"result"`
	CachedAt    time.Time                 `json:"cachedAt"`
}

// Cache is the content-hash result cache. Construct one per process and share it.
type Cache struct {
	store kv.Store
	now   func() time.Time

	mu sync.Mutex // serialises read-modify-write cycles
}

// New wraps a key-value store.
func New(store kv.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Get looks the card up in the global tier, then in the legacy tier. A legacy
// record whose stored hash differs from the current content is a miss.
func (c *Cache) Get(ctx context.Context, l Lookup) (*models.LLMAnalysisResult, Tier, bool, error) {
	key := checksum.ContentKey(l.Scope, l.Fields)

	globals, err := c.loadGlobal(ctx)
	if err != nil {
		return nil, TierNone, false, err
	}
	for _, r := range globals {
		if r.CacheKey == key && r.Result != nil {
			return r.Result, TierGlobal, true, nil
		}
	}

	if l.File == "" {
		return nil, TierNone, false, nil
	}
	legacy, err := c.loadLegacy(ctx, l.File)
	if err != nil {
		return nil, TierNone, false, err
	}
	hash := checksum.FieldsHash(l.Fields)
	for _, r := range legacy {
		if r.CardID != l.CardID {
			continue
		}
		if r.ContentHash != hash || r.Result == nil {
			return nil, TierNone, false, nil
		}
		return r.Result, TierLegacy, true, nil
	}
	return nil, TierNone, false, nil
}

// Put records result in both tiers, replacing earlier entries for the same
// key or card.
func (c *Cache) Put(ctx context.Context, l Lookup, result *models.LLMAnalysisResult) error {
	if result == nil {
		return fmt.Errorf("cache: put: nil result")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	key := checksum.ContentKey(l.Scope, l.Fields)

	globals, err := c.loadGlobal(ctx)
	if err != nil {
		return err
	}
	globals = replaceGlobal(globals, globalRecord{CacheKey: key, DeckName: l.Scope, Result: result, CachedAt: now})
	if err := c.save(ctx, globalKey, globals); err != nil {
		return err
	}

	if l.File == "" {
		return nil
	}
	legacy, err := c.loadLegacy(ctx, l.File)
	if err != nil {
		return err
	}
	legacy = replaceLegacy(legacy, legacyRecord{
		CardID:      l.CardID,
		ContentHash: checksum.FieldsHash(l.Fields),
		Result:      result,
		CachedAt:    now,
	})
	return c.save(ctx, legacyKey(l.File), legacy)
}

// TierStats summarises one tier.
type TierStats struct {
	Entries int `json:"entries"`
	Bytes   int `json:"bytes"`
}

// Stats summarises both tiers.
type Stats struct {
	Global      TierStats `json:"global"`
	Legacy      TierStats `json:"legacy"`
	LegacyFiles int       `json:"legacyFiles"`
}

// Stats counts entries and serialized bytes without decoding the entries.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	n, size, err := c.count(ctx, globalKey)
	if err != nil {
		return st, err
	}
	st.Global = TierStats{Entries: n, Bytes: size}

	keys, err := c.store.Keys(ctx, legacyPrefix)
	if err != nil {
		return st, fmt.Errorf("cache: list legacy: %w", err)
	}
	for _, k := range keys {
		n, size, err := c.count(ctx, k)
		if err != nil {
			return st, err
		}
		st.Legacy.Entries += n
		st.Legacy.Bytes += size
		st.LegacyFiles++
	}
	return st, nil
}

// Clear drops both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.Keys(ctx, legacyPrefix)
	if err != nil {
		return fmt.Errorf("cache: list legacy: %w", err)
	}
	for _, k := range append(keys, globalKey) {
		if err := c.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("cache: clear: %w", err)
		}
	}
	return nil
}

func (c *Cache) count(ctx context.Context, key string) (int, int, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("cache: read %s: %w", key, err)
	}
	if !ok {
		return 0, 0, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, len(data), fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return len(raw), len(data), nil
}

func (c *Cache) loadGlobal(ctx context.Context) ([]globalRecord, error) {
	var out []globalRecord
	return out, c.load(ctx, globalKey, &out)
}

func (c *Cache) loadLegacy(ctx context.Context, file string) ([]legacyRecord, error) {
	var out []legacyRecord
	return out, c.load(ctx, legacyKey(file), &out)
}

func (c *Cache) load(ctx context.Context, key string, v any) error {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	return nil
}

func replaceGlobal(records []globalRecord, rec globalRecord) []globalRecord {
	for i, r := range records {
		if r.CacheKey == rec.CacheKey {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

func replaceLegacy(records []legacyRecord, rec legacyRecord) []legacyRecord {
	for i, r := range records {
		if r.CardID == rec.CardID {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

// legacyKey escapes a collection file path into a single key segment.
// Escaping is reversible, so distinct paths never share a key.
func legacyKey(file string) string {
	return legacyPrefix + strings.ReplaceAll(url.PathEscape(file), ":", "%3A")
}
