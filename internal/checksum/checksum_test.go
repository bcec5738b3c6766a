package checksum

import (
	"testing"

	"github.com/starford/deckdoctor/internal/models"
)

func TestDJB2_KnownValues(t *testing.T) {
	if got := DJB2(""); got != "1505" {
		t.Errorf("DJB2(\"\") = %q, want %q", got, "1505")
	}
	if got := DJB2("a"); got != "2b5c4" {
		t.Errorf("DJB2(\"a\") = %q, want %q", got, "2b5c4")
	}
}

func TestDJB2_Stable(t *testing.T) {
	s := "Spanish::Verbs||Front:hablar||Back:to speak"
	first := DJB2(s)
	for i := 0; i < 5; i++ {
		if got := DJB2(s); got != first {
			t.Fatalf("hash changed between calls: %q vs %q", got, first)
		}
	}
}

func TestDJB2_NonASCIIUsesUTF16Units(t *testing.T) {
	// U+1F600 is a surrogate pair, so it hashes differently from a single unit.
	if DJB2("\U0001F600") == DJB2("\uD83D") {
		t.Error("surrogate pair should not collide with its high half")
	}
}

func TestContentKey_ChangesWithFieldValue(t *testing.T) {
	fields := []models.Field{{Name: "Front", Value: "hablar"}, {Name: "Back", Value: "to speak"}}
	base := ContentKey("Spanish", fields)

	mutated := []models.Field{{Name: "Front", Value: "hablar"}, {Name: "Back", Value: "to talk"}}
	if ContentKey("Spanish", mutated) == base {
		t.Error("key should change when a field value changes")
	}
	if ContentKey("French", fields) == base {
		t.Error("key should change when the scope changes")
	}
	same := []models.Field{{Name: "Front", Value: "hablar"}, {Name: "Back", Value: "to speak"}}
	if ContentKey("Spanish", same) != base {
		t.Error("identical content must produce the same key")
	}
}

func TestJoinFields(t *testing.T) {
	got := JoinFields([]models.Field{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}})
	if got != "A:1||B:2" {
		t.Errorf("JoinFields = %q", got)
	}
}

func TestFieldsHash_IgnoresScope(t *testing.T) {
	fields := []models.Field{{Name: "Text", Value: "x"}}
	if FieldsHash(fields) != DJB2("Text:x") {
		t.Error("FieldsHash should hash the joined fields only")
	}
}
