// Package redact sanitizes arbitrary structured payloads before they are
// logged or forwarded to an external system. It never mutates its input.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker replaces any value or substring judged sensitive.
const Marker = "[REDACTED]"

// Field-name hints checked against the last path segment. Longer keywords
// match as substrings of the normalized name; short ones must match a whole
// token to avoid hits like "shipping" containing "pin".
var (
	fieldHintSubstrings = []string{
		"password", "passcode", "passphrase", "secret", "token",
		"account_number", "accountnumber", "routing", "card_number",
		"cardnumber", "credit_card", "creditcard", "social_security",
		"api_key", "apikey", "auth",
	}
	fieldHintTokens = []string{"pin", "ssn", "cvv", "cvc", "tan"}
)

// Phrases that force full redaction of a string value when they appear
// anywhere in its content.
var contentPhrases = []string{
	"social security",
	"routing number",
	"account number",
	"card number",
	"security code",
	"password",
	"pin number",
	"pin is",
	"cvv",
}

var ssnPattern = regexp.MustCompile(`\b\d{3}[- ]?\d{2}[- ]?\d{4}\b`)

// Sanitize walks payload and returns a shape-preserving copy with sensitive
// values replaced by Marker, plus the dotted paths of every replaced value.
// Applying Sanitize to its own output is a no-op.
func Sanitize(payload any) (any, []string) {
	var paths []string
	clean := walk(payload, "", "", &paths)
	return clean, paths
}

func walk(value any, path, field string, paths *[]string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = walk(child, joinPath(path, key), key, paths)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = walk(child, fmt.Sprintf("%s[%d]", path, i), field, paths)
		}
		return out
	case string:
		clean, changed := sanitizeString(v, field)
		if changed {
			*paths = append(*paths, path)
		}
		return clean
	default:
		return v
	}
}

func sanitizeString(value, field string) (string, bool) {
	if value == Marker {
		return value, false
	}
	if fieldNameSensitive(field) {
		return Marker, true
	}
	lower := strings.ToLower(value)
	for _, phrase := range contentPhrases {
		if strings.Contains(lower, phrase) {
			return Marker, true
		}
	}

	changed := false
	out := ssnPattern.ReplaceAllStringFunc(value, func(string) string {
		changed = true
		return Marker
	})
	out = redactCardRuns(out, &changed)
	return out, changed
}

func fieldNameSensitive(field string) bool {
	if field == "" {
		return false
	}
	normalized := normalizeFieldName(field)
	compact := strings.ReplaceAll(normalized, " ", "_")
	for _, hint := range fieldHintSubstrings {
		if strings.Contains(compact, hint) {
			return true
		}
	}
	for _, token := range strings.FieldsFunc(normalized, func(r rune) bool { return r == ' ' }) {
		for _, hint := range fieldHintTokens {
			if token == hint {
				return true
			}
		}
	}
	return false
}

func normalizeFieldName(field string) string {
	lower := strings.ToLower(field)
	replacer := strings.NewReplacer("-", " ", ".", " ", "_", " ")
	return strings.TrimSpace(replacer.Replace(lower))
}

// redactCardRuns replaces digit runs of plausible payment-card length
// (13-19 digits, dashes and spaces allowed) that pass the Luhn checksum.
// Runs failing the checksum stay untouched to avoid false positives on
// arbitrary numeric identifiers.
func redactCardRuns(value string, changed *bool) string {
	var out strings.Builder
	runes := []rune(value)
	i := 0
	for i < len(runes) {
		if runes[i] < '0' || runes[i] > '9' {
			out.WriteRune(runes[i])
			i++
			continue
		}
		end := i
		lastDigit := i
		for end < len(runes) && isCardRune(runes[end]) {
			if runes[end] >= '0' && runes[end] <= '9' {
				lastDigit = end
			}
			end++
		}
		run := string(runes[i : lastDigit+1])
		digits := stripSeparators(run)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			out.WriteString(Marker)
			*changed = true
		} else {
			out.WriteString(run)
		}
		i = lastDigit + 1
	}
	return out.String()
}

func isCardRune(r rune) bool {
	return (r >= '0' && r <= '9') || r == '-' || r == ' '
}

func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
