package fieldtype

import "strings"

// glyphs is the fixed name-to-glyph table used to resolve emoji values
// at read time.
var glyphs = map[string]string{
	"smile": "😀",
	"joy":   "😂",
	"cry":   "😭",
	"angry": "😡",
}

// ResolveEmoji resolves a stored :name: token to its glyph. Tokens whose
// name has no configured glyph (and malformed values) are returned as-is.
func ResolveEmoji(token string) string {
	if !emojiPattern.MatchString(token) {
		return token
	}
	name := strings.Trim(token, ":")
	if glyph, ok := glyphs[name]; ok {
		return glyph
	}
	return token
}
