package auth

import "strings"

const maxUsernameLen = 32

// validUsername accepts lowercase latin letters, digits and underscore,
// up to 32 characters. Caller lowercases first.
func validUsername(s string) bool {
	if s == "" || len(s) > maxUsernameLen {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}

// validClientHash checks that the client sent a hex SHA-256 digest.
func validClientHash(s string) bool {
	return validHex(s, 64)
}

// validEmail is deliberately loose. The field is optional.
func validEmail(s string) bool {
	if s == "" {
		return true
	}
	if len(s) > 64 {
		return false
	}
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

func validHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
