package audit

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Symbols are the declared names pulled from one source snippet.
type Symbols struct {
	Functions  []string
	Types      []string
	Properties []string
}

// All returns every symbol name, deduplicated and sorted.
func (s Symbols) All() []string {
	seen := map[string]bool{}
	var all []string
	for _, group := range [][]string{s.Functions, s.Types, s.Properties} {
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				all = append(all, name)
			}
		}
	}
	sort.Strings(all)
	return all
}

// SymbolExtractor pulls declared symbol names from source text in one
// language. Extraction is pattern-based and approximate; keeping it
// behind this interface lets per-language accuracy improve without
// touching the diff and report logic.
type SymbolExtractor interface {
	// Language returns the lowercase language key.
	Language() string
	// Extensions returns file extensions this language uses, with dots.
	Extensions() []string
	// Extract pulls declared symbols from source text.
	Extract(src string) Symbols
}

var (
	extractorsMu sync.RWMutex
	extractors   = map[string]SymbolExtractor{}
)

// RegisterExtractor makes an extractor available by its language key.
func RegisterExtractor(e SymbolExtractor) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[strings.ToLower(e.Language())] = e
}

// ExtractorFor returns the extractor registered for language.
func ExtractorFor(language string) (SymbolExtractor, error) {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()
	e, ok := extractors[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("no symbol extractor registered for language %q", language)
	}
	return e, nil
}

// regexExtractor implements SymbolExtractor with per-kind patterns.
// Each pattern's first capture group is the symbol name.
type regexExtractor struct {
	language   string
	extensions []string
	functions  *regexp.Regexp
	types      *regexp.Regexp
	properties *regexp.Regexp
}

func (e *regexExtractor) Language() string     { return e.language }
func (e *regexExtractor) Extensions() []string { return e.extensions }

func (e *regexExtractor) Extract(src string) Symbols {
	return Symbols{
		Functions:  captureAll(e.functions, src),
		Types:      captureAll(e.types, src),
		Properties: captureAll(e.properties, src),
	}
}

func captureAll(re *regexp.Regexp, src string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func init() {
	RegisterExtractor(&regexExtractor{
		language:   "swift",
		extensions: []string{".swift"},
		functions:  regexp.MustCompile(`(?m)func\s+(\w+)`),
		types:      regexp.MustCompile(`(?m)(?:class|struct|enum|protocol|actor)\s+(\w+)`),
		properties: regexp.MustCompile(`(?m)(?:^|\s)(?:var|let)\s+(\w+)\s*[:=]`),
	})
	RegisterExtractor(&regexExtractor{
		language:   "kotlin",
		extensions: []string{".kt", ".kts"},
		functions:  regexp.MustCompile(`(?m)fun\s+(?:<[^>]+>\s+)?(\w+)`),
		types:      regexp.MustCompile(`(?m)(?:class|interface|object|enum class)\s+(\w+)`),
		properties: regexp.MustCompile(`(?m)(?:^|\s)(?:val|var)\s+(\w+)\s*[:=]`),
	})
}
