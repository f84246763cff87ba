// Package i18n selects the message printer for CLI output.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// MatchLanguage returns the best supported match for an Accept-Language
// style list.
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return NewPrinter(localeTag(os.Getenv("LC_ALL"), os.Getenv("LANG")))
}

// localeTag maps POSIX locale values like "de_DE.UTF-8" to a supported tag.
func localeTag(values ...string) language.Tag {
	for _, v := range values {
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		// Strip encoding (e.g. .UTF-8) if present
		if i := strings.IndexAny(v, ".@"); i != -1 {
			v = v[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
		if err != nil {
			return MatchLanguage(v)
		}
		tag, _, _ = matcher.Match(tag)
		return tag
	}
	return DefaultLang
}
