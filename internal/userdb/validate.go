package userdb

import (
	"errors"
	"strings"
)

// Sentinel reasons returned by CheckUserID.
var (
	ErrUserIDTooLong    = errors.New("userdb: userid too long")
	ErrUserIDEmpty      = errors.New("userdb: userid is empty")
	ErrUserIDBadFirst   = errors.New("userdb: userid must start with a letter or digit")
	ErrUserIDBadLocal   = errors.New("userdb: userid local part must be alphanumeric or '.'")
	ErrUserIDBadDomain  = errors.New("userdb: userid domain part must not contain whitespace")
)

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// CheckUserID canonicalizes src into a valid userid (lowercasing
// everything after an '@', the same way the historical server folded
// domain case without touching the local part) or returns one of the
// sentinel errors above describing why it was rejected.
//
// Constraints: length <= UseridMaxLen; first character alphanumeric;
// characters before '@' alphanumeric or '.'; characters after '@'
// anything but whitespace.
func CheckUserID(src string) (string, error) {
	if len(src) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(src) > UseridLen {
		return "", ErrUserIDTooLong
	}
	if !isAlnum(src[0]) {
		return "", ErrUserIDBadFirst
	}

	at := strings.IndexByte(src, '@')
	local := src
	domain := ""
	if at >= 0 {
		local = src[:at]
		domain = src[at+1:]
	}

	for i := 0; i < len(local); i++ {
		c := local[i]
		if !isAlnum(c) && c != '.' {
			return "", ErrUserIDBadLocal
		}
	}
	for i := 0; i < len(domain); i++ {
		if isSpace(domain[i]) {
			return "", ErrUserIDBadDomain
		}
	}

	if at < 0 {
		return local, nil
	}
	return local + "@" + strings.ToLower(domain), nil
}
