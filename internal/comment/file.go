package comment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileEntry accepts fractional times so malformed values can be filtered
// instead of failing the whole file.
type fileEntry struct {
	ID     string  `yaml:"id"`
	Time   float64 `yaml:"time"`
	Text   string  `yaml:"text"`
	Raw    string  `yaml:"raw"`
	Origin Origin  `yaml:"origin"`
}

// ReadFile loads a YAML or JSON list of comments. Entries may give either
// time+text or a raw comment string to run through Extract. Unusable entries
// are skipped and counted.
func ReadFile(path string) ([]Comment, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return Parse(data)
}

func Parse(data []byte) ([]Comment, int, error) {
	var entries []fileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, 0, fmt.Errorf("parse comments: %w", err)
	}
	out := make([]Comment, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		var c Comment
		if e.Raw != "" {
			x, err := Extract(e.Raw)
			if err != nil {
				skipped++
				continue
			}
			c = x
		} else {
			x, ok := FromSeconds(e.Time, e.Text, e.Origin)
			if !ok {
				skipped++
				continue
			}
			c = x
		}
		c.ID = e.ID
		out = append(out, c)
	}
	return out, skipped, nil
}
