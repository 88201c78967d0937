package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cppla/classifieds/utils"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
)

const (
	minPasswordLen  = 8
	maxTitleLen     = 64
	maxSlugLen      = 128
	maxDescription  = 512
	listingSlugTail = 8
)

// ValidateEmail checks the address shape only.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateUsername allows 3 to 32 ASCII letters, digits, '_', '.' and '-'.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword rejects all-digit, short and over-long passwords, in that order.
func ValidatePassword(password string) error {
	if password != "" && isDigits(password) {
		return ErrPasswordNumeric
	}
	if len(password) < minPasswordLen {
		return ErrPasswordShort
	}
	if len(password) > utils.MaxPasswordBytes {
		return ErrPasswordLong
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// CleanCategoryTitle normalizes a category title and derives its slug.
// "  Home   & Garden " becomes "home garden" and "home-garden".
func CleanCategoryTitle(raw string) (title, slug string) {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	title = strings.Join(strings.Fields(b.String()), " ")
	slug = strings.ReplaceAll(title, " ", "-")
	return title, slug
}

// ListingSlug derives a unique slug from a listing title.
func ListingSlug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	base := strings.TrimSuffix(b.String(), "-")
	if n := maxSlugLen - listingSlugTail - 1; len(base) > n {
		base = strings.TrimSuffix(truncateBytes(base, n), "-")
	}
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:listingSlugTail]
	if base == "" {
		return tail
	}
	return base + "-" + tail
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
