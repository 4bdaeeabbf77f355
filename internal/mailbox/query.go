package mailbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultKeywords is used when no keyword file is configured.
var DefaultKeywords = []string{
	"hotel reservation",
	"reservation confirmation",
	"booking confirmation",
	"your stay",
	"check-in",
	"confirmation number",
	"itinerary",
}

// BuildSearchQuery quotes each keyword and ORs them together, which Gmail
// reads as a phrase search.
func BuildSearchQuery(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(k, `"`, "")+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// ParseQuery splits a query built by BuildSearchQuery back into phrases.
func ParseQuery(query string) []string {
	var phrases []string
	for _, term := range strings.Split(query, " OR ") {
		term = strings.TrimSpace(term)
		term = strings.Trim(term, `"`)
		if term != "" {
			phrases = append(phrases, term)
		}
	}
	return phrases
}

// LoadKeywords reads a JSONL file with one JSON string per line.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	var keywords []string
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var k string
		if err := json.Unmarshal([]byte(text), &k); err != nil {
			return nil, fmt.Errorf("keywords file line %d: %w", line, err)
		}
		keywords = append(keywords, k)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return keywords, nil
}

// KeywordsOrDefault loads path, falling back to DefaultKeywords when path is
// empty or missing.
func KeywordsOrDefault(path string) ([]string, error) {
	if path == "" {
		return DefaultKeywords, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultKeywords, nil
	}
	keywords, err := LoadKeywords(path)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return DefaultKeywords, nil
	}
	return keywords, nil
}
