package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxNameBytes keeps names within common filesystem component limits.
const maxNameBytes = 255

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "!",
	"\\", "!",
	":", "!",
	"*", "!",
	"?", "!",
	"\"", "!",
	"<", "!",
	">", "!",
	"|", "!",
)

var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizeFileName turns an arbitrary title or item name into a single safe
// path component. Text is NFC-normalized, control characters are dropped,
// reserved punctuation becomes "!", and leading/trailing dots and spaces are
// trimmed. Names that end up empty or reserved get a "!" prefix/fallback.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = fileNameReplacer.Replace(name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "!"
	}
	if _, reserved := reservedNames[strings.ToLower(strings.SplitN(name, ".", 2)[0])]; reserved {
		name = "!" + name
	}
	return truncateBytes(name, maxNameBytes)
}

// truncateBytes shortens s to at most limit bytes without splitting a rune,
// keeping the extension when one exists.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := ""
	if i := strings.LastIndexByte(s, '.'); i > 0 && len(s)-i <= 16 {
		ext = s[i:]
		s = s[:i]
	}
	budget := limit - len(ext)
	for len(s) > budget {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return strings.TrimRight(s, " .") + ext
}
