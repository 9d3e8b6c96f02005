// Package language checks that generated review text is actually written in
// the requested language. Models occasionally answer in English no matter
// what the prompt asks for, so every generation passes through here before
// it is served or stored.
package language

// Unicode script ranges used for detection. Checking script presence is
// enough for the supported languages; a full language classifier is not
// needed to catch a model that ignored the prompt.
const (
	devanagariLo = 0x0900
	devanagariHi = 0x097F
	gujaratiLo   = 0x0A80
	gujaratiHi   = 0x0AFF
)

func isDevanagari(r rune) bool { return r >= devanagariLo && r <= devanagariHi }
func isGujarati(r rune) bool   { return r >= gujaratiLo && r <= gujaratiHi }

// Matches reports whether text plausibly belongs to the language identified
// by code. English text must contain no Devanagari or Gujarati runes; Hindi
// and Gujarati text must contain at least one rune of their script. Unknown
// codes pass, since there is no script rule to apply.
func Matches(text, code string) bool {
	switch code {
	case "en":
		for _, r := range text {
			if isDevanagari(r) || isGujarati(r) {
				return false
			}
		}
		return true
	case "hi":
		for _, r := range text {
			if isDevanagari(r) {
				return true
			}
		}
		return false
	case "gu":
		for _, r := range text {
			if isGujarati(r) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
