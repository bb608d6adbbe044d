package lesson

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Supported narration languages. Indian English comes first and is the
// default; the rest are the Indian languages the tutor can narrate in.
var supported = []language.Tag{
	language.MustParse("en-IN"),
	language.English,
	language.Hindi,
	language.Bengali,
	language.Tamil,
	language.Telugu,
	language.Kannada,
	language.Malayalam,
	language.Marathi,
	language.Gujarati,
	language.Punjabi,
	language.MustParse("or"),
	language.MustParse("as"),
	language.Urdu,
	language.Nepali,
}

var matcher = language.NewMatcher(supported)

// NegotiateLanguage picks the narration language for an Accept-Language
// header value. Unknown or empty input yields Indian English.
func NegotiateLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// LanguageName returns the English name of tag, e.g. "Tamil".
func LanguageName(tag language.Tag) string {
	return display.English.Tags().Name(tag)
}

// NativeName returns the name of tag in its own script, e.g. "தமிழ்".
func NativeName(tag language.Tag) string {
	return display.Self.Name(tag)
}
