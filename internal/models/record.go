// Package models defines the domain types for unirepo catalogs.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Pair is one key/value entry of a Record.
type Pair struct {
	Key   string
	Value string
}

// Record is one catalog entry. Keys keep schema order when encoded as a JSON
// object, which a map cannot guarantee.
type Record struct {
	Pairs []Pair
}

// Set replaces the value for key, or appends the pair when key is new.
func (r *Record) Set(key, value string) {
	for i := range r.Pairs {
		if r.Pairs[i].Key == key {
			r.Pairs[i].Value = value
			return
		}
	}
	r.Pairs = append(r.Pairs, Pair{Key: key, Value: value})
}

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	for _, p := range r.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// MarshalJSON encodes the record as an object with keys in insertion order.
// HTML characters are left unescaped so titles like "P&D" survive verbatim.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range r.Pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, p.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeString(&buf, p.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of string values, preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	r.Pairs = r.Pairs[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("record: value for %q: %w", key, err)
		}
		r.Pairs = append(r.Pairs, Pair{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode always terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Rejection describes a PDF whose name does not satisfy the catalog schema.
type Rejection struct {
	Name     string `json:"name"`
	Segments int    `json:"segments"`
	Want     int    `json:"want"`
}

// Result is the outcome of one catalog build.
type Result struct {
	Catalog    string      `json:"catalog"`
	Output     string      `json:"output"`
	Records    []Record    `json:"records"`
	Seen       int         `json:"seen"`
	Rejections []Rejection `json:"rejections"`
}

// Accepted returns the number of records written to the catalog.
func (r *Result) Accepted() int {
	return len(r.Records)
}
