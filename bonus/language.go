package bonus

import (
	"strings"

	"github.com/sourcegraph/zfind/languages"
)

// keywordFunc returns the bonus for one token of a line, or false if the
// token means nothing for the language.
type keywordFunc func(tok string, score int) (int, bool)

// keywordTables is keyed by normalized language name.
var keywordTables = map[string]keywordFunc{
	"vim":  vimKeyword,
	"rust": rustKeyword,
}

// extAliases covers extensions go-enry assigns to several languages. It
// lists .rs for both Rust and RenderScript.
var extAliases = map[string]string{
	"rs": "rust",
}

func tableFor(ext string) keywordFunc {
	ext = strings.ToLower(ext)
	if lang, ok := extAliases[ext]; ok {
		return keywordTables[lang]
	}
	return keywordTables[languages.ForExtension(ext)]
}

// language looks at the first two tokens of the trimmed line. blines
// prefixes every line with its number, so the keyword is often the second
// token.
func language(ext, text string, score int) int {
	kw := tableFor(ext)
	if kw == nil {
		return 0
	}
	toks := strings.Fields(text)
	for i := 0; i < len(toks) && i < 2; i++ {
		if delta, ok := kw(toks[i], score); ok {
			return delta
		}
	}
	return 0
}

func vimKeyword(tok string, score int) (int, bool) {
	switch {
	case strings.HasPrefix(tok, "function"):
		return score / 3, true
	case tok == "let":
		return score / 6, true
	case tok == `"`:
		return -(score / 5), true
	}
	return 0, false
}

func rustKeyword(tok string, score int) (int, bool) {
	switch {
	case strings.HasPrefix(tok, "pub"):
		return score / 6, true
	}
	switch tok {
	case "type", "mod", "impl":
		return score / 5, true
	case "fn", "macro_rules":
		return score / 4, true
	case "let", "const", "static", "enum", "struct", "trait":
		return score / 3, true
	}
	switch {
	case strings.HasPrefix(tok, "[cfg(feature"):
		return score / 7, true
	case strings.HasPrefix(tok, "//"):
		return -(score / 5), true
	}
	return 0, false
}
