// Package prompt pre-processes user prompts before they reach a generation
// service: Unicode normalization, whitespace cleanup and static dictionary
// translation of individual words.
package prompt

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Transform rewrites a prompt. Transforms are stateless and safe for concurrent use.
type Transform func(string) string

// Identity returns the prompt unchanged.
func Identity(s string) string { return s }

// Normalize applies NFKC normalization and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// Dictionary translates whole words using a static table.
type Dictionary struct {
	entries map[string]string
}

// NewDictionary builds a dictionary; keys match case-insensitively.
func NewDictionary(entries map[string]string) *Dictionary {
	d := &Dictionary{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		key := strings.ToLower(Normalize(k))
		if key != "" {
			d.entries[key] = v
		}
	}
	return d
}

// LoadDictionary reads a YAML mapping of word to replacement.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("prompt: read dictionary: %w", err)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("prompt: parse dictionary: %w", err)
	}
	return NewDictionary(entries), nil
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Apply normalizes s and replaces every word found in the dictionary.
// Punctuation around a word is preserved.
func (d *Dictionary) Apply(s string) string {
	words := strings.Fields(norm.NFKC.String(s))
	for i, w := range words {
		start := strings.IndexFunc(w, isWordRune)
		if start < 0 {
			continue
		}
		last := strings.LastIndexFunc(w, isWordRune)
		_, size := utf8.DecodeRuneInString(w[last:])
		end := last + size
		core := w[start:end]
		if repl, ok := d.entries[strings.ToLower(core)]; ok {
			words[i] = w[:start] + repl + w[end:]
		}
	}
	return strings.Join(words, " ")
}

// Transform returns Apply as a Transform.
func (d *Dictionary) Transform() Transform {
	return d.Apply
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\''
}
