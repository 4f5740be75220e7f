package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFieldNameHint(t *testing.T) {
	t.Parallel()

	clean, paths := Sanitize(map[string]any{"password": "hello"})
	out := clean.(map[string]any)
	assert.Equal(t, Marker, out["password"])
	assert.Equal(t, []string{"password"}, paths)
}

func TestSanitizeContentKeyword(t *testing.T) {
	t.Parallel()

	clean, paths := Sanitize(map[string]any{"city": "my password is hello"})
	out := clean.(map[string]any)
	assert.Equal(t, Marker, out["city"])
	assert.Equal(t, []string{"city"}, paths)
}

func TestSanitizeLuhn(t *testing.T) {
	t.Parallel()

	clean, paths := Sanitize(map[string]any{
		"note":  "card 4111111111111111 on file",
		"other": "ref 4111111111111112 is not a card",
	})
	out := clean.(map[string]any)
	assert.Equal(t, "card "+Marker+" on file", out["note"])
	assert.Equal(t, "ref 4111111111111112 is not a card", out["other"])
	assert.Equal(t, []string{"note"}, sorted(paths))
}

func TestSanitizeLuhnWithSeparators(t *testing.T) {
	t.Parallel()

	clean, _ := Sanitize(map[string]any{"memo": "use 4111-1111-1111-1111 today"})
	out := clean.(map[string]any)
	assert.Equal(t, "use "+Marker+" today", out["memo"])
}

func TestSanitizeSSNPattern(t *testing.T) {
	t.Parallel()

	clean, paths := Sanitize(map[string]any{"detail": "number 123-45-6789 please"})
	out := clean.(map[string]any)
	assert.Equal(t, "number "+Marker+" please", out["detail"])
	assert.Len(t, paths, 1)
}

func TestSanitizeNestedPaths(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"contact": map[string]any{
			"name": "Ada",
			"pin":  "9911",
		},
		"notes": []any{
			"plain text",
			map[string]any{"account_number": "22"},
		},
	}
	clean, paths := Sanitize(payload)
	out := clean.(map[string]any)
	contact := out["contact"].(map[string]any)
	assert.Equal(t, "Ada", contact["name"])
	assert.Equal(t, Marker, contact["pin"])
	notes := out["notes"].([]any)
	assert.Equal(t, "plain text", notes[0])
	assert.Equal(t, Marker, notes[1].(map[string]any)["account_number"])
	assert.ElementsMatch(t, []string{"contact.pin", "notes[1].account_number"}, paths)
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"password": "hello"}
	_, _ = Sanitize(payload)
	assert.Equal(t, "hello", payload["password"])
}

func TestSanitizeIdempotent(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"password": "hunter2",
		"note":     "ssn 123-45-6789 and card 4111111111111111",
		"nested":   []any{map[string]any{"token": "abc"}},
	}
	once, _ := Sanitize(payload)
	twice, paths := Sanitize(once)
	require.Equal(t, once, twice)
	assert.Empty(t, paths)
}

func TestFieldNameTokenBoundaries(t *testing.T) {
	t.Parallel()

	// "shipping" contains "pin" as a substring but is not a sensitive field.
	clean, paths := Sanitize(map[string]any{"shipping": "123 Main St"})
	out := clean.(map[string]any)
	assert.Equal(t, "123 Main St", out["shipping"])
	assert.Empty(t, paths)

	clean, _ = Sanitize(map[string]any{"card-pin": "0000"})
	assert.Equal(t, Marker, clean.(map[string]any)["card-pin"])
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
