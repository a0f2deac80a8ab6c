package ai

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Language is the closed set of languages the assistant answers in.
type Language string

const (
	English  Language = "en"
	Hindi    Language = "hi"
	Hinglish Language = "hinglish"
)

var hinglishTag = language.MustParse("hi-Latn")

// DetectLanguage classifies text by script: Devanagari only is Hindi,
// Devanagari mixed with Latin letters is Hinglish, anything else English.
func DetectLanguage(text string) Language {
	var devanagari, latin bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			devanagari = true
		case unicode.Is(unicode.Latin, r) && unicode.IsLetter(r):
			latin = true
		}
		if devanagari && latin {
			return Hinglish
		}
	}
	if devanagari {
		return Hindi
	}
	return English
}

// ParseLanguage accepts our own codes, BCP 47 tags ("hi-IN") and the
// language names Whisper reports ("hindi").
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "", false
	case string(Hinglish), "hi-latn":
		return Hinglish, true
	case "english":
		return English, true
	case "hindi":
		return Hindi, true
	}

	tag, err := language.Parse(s)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	switch base {
	case mustBase(language.English):
		return English, true
	case mustBase(language.Hindi):
		if script, conf := tag.Script(); conf == language.Exact && script.String() == "Latn" {
			return Hinglish, true
		}
		return Hindi, true
	}
	return "", false
}

func mustBase(t language.Tag) language.Base {
	b, _ := t.Base()
	return b
}

// Tag returns the BCP 47 tag for l.
func (l Language) Tag() language.Tag {
	switch l {
	case Hindi:
		return language.Hindi
	case Hinglish:
		return hinglishTag
	default:
		return language.English
	}
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	switch l {
	case English, Hindi, Hinglish:
		return true
	}
	return false
}
