package types

import (
	"fmt"
	"strings"
)

// Language is the closed set of dubbing languages. Provider-specific codes
// are derived from the BCP-47 tag; free-form language strings from callers
// are resolved through ParseLanguage.
type Language string

const (
	LangHindi     Language = "hindi"
	LangEnglish   Language = "english"
	LangTamil     Language = "tamil"
	LangTelugu    Language = "telugu"
	LangKannada   Language = "kannada"
	LangMalayalam Language = "malayalam"
	LangBengali   Language = "bengali"
	LangMarathi   Language = "marathi"
	LangGujarati  Language = "gujarati"
	LangPunjabi   Language = "punjabi"
	LangOdia      Language = "odia"
)

// bcp47 maps each language to its canonical BCP-47 tag.
var bcp47 = map[Language]string{
	LangHindi:     "hi-IN",
	LangEnglish:   "en-IN",
	LangTamil:     "ta-IN",
	LangTelugu:    "te-IN",
	LangKannada:   "kn-IN",
	LangMalayalam: "ml-IN",
	LangBengali:   "bn-IN",
	LangMarathi:   "mr-IN",
	LangGujarati:  "gu-IN",
	LangPunjabi:   "pa-IN",
	LangOdia:      "od-IN",
}

// IsValid reports whether l is a recognised language.
func (l Language) IsValid() bool {
	_, ok := bcp47[l]
	return ok
}

// BCP47 returns the canonical BCP-47 tag for l (e.g. "hi-IN").
func (l Language) BCP47() string {
	return bcp47[l]
}

// DisplayName returns the capitalised English name of the language.
func (l Language) DisplayName() string {
	if l == "" {
		return ""
	}
	return strings.ToUpper(string(l[:1])) + string(l[1:])
}

// ParseLanguage resolves a caller-supplied language string — an English name
// ("Hindi"), a bare ISO code ("hi") or a full tag ("hi-IN") — to a Language.
func ParseLanguage(s string) (Language, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	if needle == "" {
		return "", fmt.Errorf("empty language")
	}
	if l := Language(needle); l.IsValid() {
		return l, nil
	}
	for l, tag := range bcp47 {
		if needle == strings.ToLower(tag) || needle == strings.ToLower(strings.SplitN(tag, "-", 2)[0]) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}
