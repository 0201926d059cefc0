package persistence

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"example.com/training/internal/scoring"
)

type entryDocument struct {
	Exercise string        `json:"exercise"`
	Sets     []setDocument `json:"sets"`
}

type setDocument struct {
	Reps   *int     `json:"reps,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// EncodeEntries renders workout entries for the JSONB entries column.
func EncodeEntries(entries []scoring.Entry) ([]byte, error) {
	docs := make([]entryDocument, 0, len(entries))
	for _, entry := range entries {
		doc := entryDocument{Exercise: entry.Exercise, Sets: make([]setDocument, 0, len(entry.Sets))}
		for _, set := range entry.Sets {
			doc.Sets = append(doc.Sets, setDocument{Reps: set.Reps, Weight: set.Weight})
		}
		docs = append(docs, doc)
	}
	return json.Marshal(docs)
}

// DecodeEntries reads the entries column. Rows written before validation existed may hold
// numbers as strings, nulls or garbage; those values decode as absent and score as zero.
// Elements that are not objects are dropped one by one, without losing their neighbours.
// A document that is not an array decodes to no entries.
func DecodeEntries(raw []byte) []scoring.Entry {
	docs := lenientObjects(raw)

	entries := make([]scoring.Entry, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		entry := scoring.Entry{Exercise: lenientString(doc["exercise"])}

		sets := lenientObjects(doc["sets"])
		entry.Sets = make([]scoring.Set, 0, len(sets))
		for _, set := range sets {
			entry.Sets = append(entry.Sets, scoring.Set{
				Reps:   lenientInt(set["reps"]),
				Weight: lenientFloat(set["weight"]),
			})
		}
		entries = append(entries, entry)
	}
	return entries
}

// lenientObjects decodes a JSON array element by element. null elements come back as nil
// maps; elements of any other non-object type are skipped.
func lenientObjects(raw json.RawMessage) []map[string]json.RawMessage {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	out := make([]map[string]json.RawMessage, 0, len(elems))
	for _, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func lenientFloat(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil
		}
		value = parsed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil
	}
	return &value
}

func lenientInt(raw json.RawMessage) *int {
	value := lenientFloat(raw)
	if value == nil || *value > math.MaxInt32 {
		return nil
	}
	n := int(math.Trunc(*value))
	return &n
}
