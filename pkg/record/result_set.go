package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultSet is every record fetched during one run, in retrieval order.
type ResultSet []Record

// Columns returns the union of field names in order of first appearance.
// The first record's fields come first, in that record's order.
func (rs ResultSet) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rs {
		for _, k := range r.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// DecodePage parses a response body holding a JSON array of objects.
// An empty body is an empty page.
func DecodePage(body []byte) ([]Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var page []Record
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}
