// Package checksum computes the cheap content fingerprints used as cache keys.
package checksum

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/starford/deckdoctor/internal/models"
)

// keySep joins the scope and field pairs. It is part of the persisted key
// format and must not change.
const keySep = "||"

// DJB2 returns the hex-encoded djb2 (xor variant) hash of s, computed over
// UTF-16 code units and folded to 32 bits. It is not collision resistant.
func DJB2(s string) string {
	h := uint32(5381)
	for _, c := range utf16.Encode([]rune(s)) {
		h = ((h << 5) + h) ^ uint32(c)
	}
	return strconv.FormatUint(uint64(h), 16)
}

// JoinFields renders fields as "name:value" pairs joined by "||".
func JoinFields(fields []models.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ":" + f.Value
	}
	return strings.Join(parts, keySep)
}

// ContentKey is the global cache key for a scope and its field content.
func ContentKey(scope string, fields []models.Field) string {
	return DJB2(scope + keySep + JoinFields(fields))
}

// FieldsHash fingerprints field content alone, for change detection.
func FieldsHash(fields []models.Field) string {
	return DJB2(JoinFields(fields))
}
