package tenants

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSlugLength = 64

// Slugify turns a tenant name into a URL-safe slug. Runs of characters
// that are not letters or digits collapse into single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		// Cut on a rune boundary so multibyte names stay valid UTF-8
		cut := maxSlugLength
		for cut > 0 && !utf8.RuneStart(slug[cut]) {
			cut--
		}
		slug = strings.Trim(slug[:cut], "-")
	}
	if slug == "" {
		slug = "tenant"
	}
	return slug
}
