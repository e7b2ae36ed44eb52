// Package docjson handles documents as raw JSON objects keyed by their "id" field.
package docjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingID = errors.New("document has no id")
	ErrNotObject = errors.New("document is not a JSON object")
)

// ID returns the "id" field of doc, or "" when absent.
func ID(doc json.RawMessage) string {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &v); err != nil {
		return ""
	}
	return v.ID
}

// Index returns the position of the document with the given id, or -1.
func Index(docs []json.RawMessage, id string) int {
	for i, d := range docs {
		if ID(d) == id {
			return i
		}
	}
	return -1
}

// Prepend replaces the document with the same id in place, or puts it first.
func Prepend(docs []json.RawMessage, doc json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs)+1)
	if i := Index(docs, ID(doc)); i >= 0 {
		out = append(out, docs...)
		out[i] = doc
		return out
	}
	out = append(out, doc)
	return append(out, docs...)
}

// Append replaces the document with the same id in place, or adds it last.
func Append(docs []json.RawMessage, doc json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs)+1)
	out = append(out, docs...)
	if i := Index(out, ID(doc)); i >= 0 {
		out[i] = doc
		return out
	}
	return append(out, doc)
}

// Object decodes doc into a map, keeping numbers exact.
func Object(doc json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if m == nil {
		return nil, ErrNotObject
	}
	return m, nil
}

// Overlay sets every top-level field of patch on doc.
func Overlay(doc, patch json.RawMessage) (json.RawMessage, error) {
	base, err := Object(doc)
	if err != nil {
		return nil, err
	}
	fields, err := Object(patch)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		base[k] = v
	}
	return json.Marshal(base)
}

// Encode marshals v and checks it carries an id.
func Encode(v any) (json.RawMessage, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode document: %w", err)
	}
	id := ID(raw)
	if id == "" {
		return nil, "", ErrMissingID
	}
	return raw, id, nil
}

// List parses a JSON array of documents.
func List(raw []byte) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []json.RawMessage{}
	}
	return docs, nil
}

// Decode converts docs into T, skipping documents that do not fit.
func Decode[T any](docs []json.RawMessage) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
