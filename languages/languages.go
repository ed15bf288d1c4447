// Package languages maps file names to language names on top of go-enry.
// The names are normalized so callers can key tables on them.
package languages

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"golang.org/x/exp/slices"
)

// Make sure all names are lowercase here, since they are normalized
var enryLanguageMappings = map[string]string{
	"c++":        "cpp",
	"c#":         "c_sharp",
	"vim script": "vim",
}

// NormalizeLanguage converts the language name to lowercase and maps known
// aliases to their canonical names.
func NormalizeLanguage(filetype string) string {
	normalized := strings.ToLower(filetype)
	if mapped, ok := enryLanguageMappings[normalized]; ok {
		normalized = mapped
	}

	return normalized
}

// ForExtension returns the normalized language of a file extension, with or
// without the leading dot. Unknown extensions return "".
func ForExtension(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return ""
	}
	if langs := enry.GetLanguagesByFilename("."+ext, nil, nil); len(langs) == 1 {
		return NormalizeLanguage(langs[0])
	}
	lang, _ := enry.GetLanguageByExtension("file." + ext)
	return NormalizeLanguage(lang)
}

// ForPath returns the normalized language of path, judged by its name
// only. Ambiguous or unknown names return "".
func ForPath(path string) string {
	langs, _ := GetLanguages(path, nil)
	if len(langs) != 1 {
		return ""
	}
	return NormalizeLanguage(langs[0])
}

// GetLanguages returns the candidate languages of path.
//
// The content can be optionally passed via a callback instead of directly, so
// that in the common case, the caller can avoid fetching the content.
// getContent is not called if the name alone is conclusive.
//
// Returns:
//   - An error if the getContent func returns an error
//   - An empty slice if language detection failed
//   - A single-element slice if the language was determined exactly
//   - A multi-element slice if the language was ambiguous
func GetLanguages(path string, getContent func() ([]byte, error)) ([]string, error) {
	langs := enry.GetLanguagesByFilename(path, nil, nil)
	if len(langs) == 1 {
		return langs, nil
	}
	if byExt := enry.GetLanguagesByExtension(path, nil, nil); len(byExt) > 0 {
		if len(byExt) == 1 {
			return slices.Clone(byExt), nil
		}
		langs = byExt
	}
	if getContent == nil {
		return slices.Clone(langs), nil
	}

	content, err := getContent()
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return slices.Clone(langs), nil
	}
	if enry.IsBinary(content) {
		return nil, nil
	}

	candidates := langs
	for _, strategy := range []enry.Strategy{enry.GetLanguagesByModeline, enry.GetLanguagesByShebang, enry.GetLanguagesByContent, enry.GetLanguagesByClassifier} {
		found := strategy(path, content, candidates)
		switch len(found) {
		case 0:
			continue
		case 1:
			return slices.Clone(found), nil
		default:
			candidates = found
		}
	}
	return slices.Clone(candidates), nil
}

// Ext returns the extension of path without the dot.
func Ext(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
