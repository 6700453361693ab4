package biz

import "strings"

// ExtractID pulls a link id out of pasted text: a share deep link carrying
// a start parameter, or a bare id. Returns "" when nothing usable is found.
func ExtractID(text string) string {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, "start="); i >= 0 {
		id := text[i+len("start="):]
		if j := strings.IndexFunc(id, func(r rune) bool {
			return !isIDRune(r)
		}); j >= 0 {
			id = id[:j]
		}
		if validID(id) {
			return id
		}
		return ""
	}

	if validID(text) {
		return text
	}
	return ""
}

func validID(s string) bool {
	if len(s) != linkIDLen {
		return false
	}
	for _, r := range s {
		if !isIDRune(r) {
			return false
		}
	}
	return true
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_':
		return true
	}
	return false
}
