package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes files from folders.
type Kind uint8

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts "file" or "folder" (case-insensitive; "directory" and "dir" alias folder).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return KindFile, nil
	case "folder", "directory", "dir":
		return KindFolder, nil
	}
	return 0, fmt.Errorf("unknown entry kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Entry is a file or folder as listed by the server.
type Entry struct {
	ID        EntryID   `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	ParentID  EntryID   `json:"parent_id"`
	Size      int64     `json:"size,omitempty"` // files only
	CreatedAt time.Time `json:"created_at"`
	Starred   bool      `json:"starred,omitempty"`
}

// entryWire tolerates the field spellings different backend versions use.
type entryWire struct {
	ID        EntryID         `json:"id"`
	Name      string          `json:"name"`
	Kind      json.RawMessage `json:"kind"`
	Type      string          `json:"type"`
	IsFolder  *bool           `json:"is_folder"`
	ParentID  EntryID         `json:"parent_id"`
	Size      int64           `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
	Starred   bool            `json:"starred"`
	IsStarred bool            `json:"is_starred"`
}

// UnmarshalJSON reads "kind", falling back to "type" or a boolean "is_folder".
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Entry{
		ID:        w.ID,
		Name:      w.Name,
		ParentID:  w.ParentID,
		Size:      w.Size,
		CreatedAt: w.CreatedAt,
		Starred:   w.Starred || w.IsStarred,
	}

	switch {
	case len(w.Kind) > 0 && string(w.Kind) != "null":
		if err := json.Unmarshal(w.Kind, &e.Kind); err != nil {
			return fmt.Errorf("entry %s: %w", w.ID, err)
		}
	case w.Type != "":
		k, err := ParseKind(w.Type)
		if err != nil {
			return fmt.Errorf("entry %s: %w", w.ID, err)
		}
		e.Kind = k
	case w.IsFolder != nil:
		if *w.IsFolder {
			e.Kind = KindFolder
		}
	default:
		return fmt.Errorf("entry %s: missing kind", w.ID)
	}

	if e.Kind == KindFolder {
		e.Size = 0
	}
	return nil
}

func (e Entry) IsFolder() bool {
	return e.Kind == KindFolder
}

// IsTopLevel reports whether the entry sits directly under the root.
func (e Entry) IsTopLevel() bool {
	return e.ParentID == RootID
}

// PermissionGrant is one row returned by the permission list endpoint.
type PermissionGrant struct {
	FileID     EntryID    `json:"file_id"`
	UserID     string     `json:"user_id"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SelectionEntry is an entry picked in a selection dialog together with the
// permissions that will be attached to it.
type SelectionEntry struct {
	ID          EntryID       `json:"id"`
	Name        string        `json:"name"`
	Kind        Kind          `json:"kind"`
	Permissions PermissionSet `json:"permissions"`
}

// NewSelectionEntry wraps an entry with the given permission set.
func NewSelectionEntry(e Entry, perms PermissionSet) SelectionEntry {
	return SelectionEntry{ID: e.ID, Name: e.Name, Kind: e.Kind, Permissions: perms}
}

// MoveRequest describes relocating SourceID from CurrentParentID to DestinationParentID.
type MoveRequest struct {
	SourceID            EntryID `json:"source_id"`
	CurrentParentID     EntryID `json:"current_parent_id"`
	DestinationParentID EntryID `json:"destination_parent_id"`
}

// NewMoveRequest builds a request for moving e to dest.
func NewMoveRequest(e Entry, dest EntryID) MoveRequest {
	return MoveRequest{SourceID: e.ID, CurrentParentID: e.ParentID, DestinationParentID: dest}
}

// IsNoOp reports whether the destination is the entry's current parent.
func (m MoveRequest) IsNoOp() bool {
	return m.CurrentParentID == m.DestinationParentID
}
