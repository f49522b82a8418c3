// Package listfile loads contact rosters from disk. Three formats are
// recognized by extension: CSV with a header row, YAML lists, and plain
// text with one contact per line.
package listfile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one roster line: the contact identifier plus any extra
// attributes the file carried for it.
type Entry struct {
	ID    string
	Attrs map[string]string
}

// Columns accepted as the identifier in CSV headers, in priority order.
var idColumns = []string{"id", "url", "profile_url"}

// Load reads the roster at path. Duplicate identifiers keep the first
// occurrence.
func Load(path string) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		entries, err = loadCSV(path)
	case ".yaml", ".yml":
		entries, err = loadYAML(path)
	default:
		entries, err = loadLines(path)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(entries), nil
}

func loadLines(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, Entry{ID: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func loadCSV(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("listfile: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	idIdx := -1
	for _, want := range idColumns {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), want) {
				idIdx = i
				break
			}
		}
		if idIdx >= 0 {
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("listfile: %s has no identifier column (one of %s)", path, strings.Join(idColumns, ", "))
	}

	var entries []Entry
	for _, row := range records[1:] {
		if idIdx >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idIdx])
		if id == "" {
			continue
		}
		entry := Entry{ID: id}
		for i, col := range header {
			if i == idIdx || i >= len(row) {
				continue
			}
			val := strings.TrimSpace(row[i])
			if val == "" {
				continue
			}
			if entry.Attrs == nil {
				entry.Attrs = map[string]string{}
			}
			entry.Attrs[strings.ToLower(strings.TrimSpace(col))] = val
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// yamlEntry accepts either a bare string or a mapping with an id key;
// remaining mapping keys become attributes.
type yamlEntry struct {
	ID    string
	Attrs map[string]string
}

func (e *yamlEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&e.ID)
	}
	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for _, key := range idColumns {
		if v, ok := raw[key]; ok {
			e.ID = strings.TrimSpace(v)
			delete(raw, key)
			break
		}
	}
	if e.ID == "" {
		return fmt.Errorf("entry has no identifier key (one of %s)", strings.Join(idColumns, ", "))
	}
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return nil
}

func loadYAML(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []yamlEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("listfile: parse %s: %w", path, err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			continue
		}
		entries = append(entries, Entry{ID: id, Attrs: e.Attrs})
	}
	return entries, nil
}

func dedupe(entries []Entry) []Entry {
	seen := map[string]bool{}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}
