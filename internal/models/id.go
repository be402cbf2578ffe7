// Package models defines the data structures shared by the filedesk client,
// hierarchy and state packages.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntryID is the canonical identifier of a file or folder.
// The server sends ids as JSON strings in some responses and as numbers in
// others; both decode to the same EntryID so plain == is always correct.
type EntryID string

// RootID is the parent id of every top-level entry.
const RootID EntryID = ""

// ParseEntryID normalizes user or server supplied text into an EntryID.
// "null", "root" and "" all mean RootID.
func ParseEntryID(s string) EntryID {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "root", "/":
		return RootID
	}
	return EntryID(canonicalNumber(s))
}

// IsRoot reports whether id is the root sentinel.
func (id EntryID) IsRoot() bool {
	return id == RootID
}

func (id EntryID) String() string {
	if id == RootID {
		return "root"
	}
	return string(id)
}

// MarshalJSON writes RootID as null.
func (id EntryID) MarshalJSON() ([]byte, error) {
	if id == RootID {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = RootID
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid entry id %s: %w", data, err)
		}
		*id = EntryID(canonicalNumber(strings.TrimSpace(s)))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid entry id %s: %w", data, err)
	}
	*id = EntryID(canonicalNumber(n.String()))
	return nil
}

// canonicalNumber rewrites integral numeric text ("007", "7.0", "7e0") to its
// shortest decimal form. Anything else (uuids, slugs) is returned unchanged.
func canonicalNumber(s string) string {
	if s == "" {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}
