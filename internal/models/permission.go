package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Permission is one access right a user can hold on a file or folder.
type Permission uint8

const (
	PermissionOwner Permission = iota
	PermissionView
	PermissionEdit
	PermissionUpload
	PermissionDelete
	PermissionCreateFolder

	permissionCount
)

var permissionNames = [permissionCount]string{
	PermissionOwner:        "owner",
	PermissionView:         "view",
	PermissionEdit:         "edit",
	PermissionUpload:       "upload",
	PermissionDelete:       "delete",
	PermissionCreateFolder: "create_folder",
}

// AllPermissions returns the full vocabulary in display order.
func AllPermissions() []Permission {
	out := make([]Permission, 0, permissionCount)
	for p := Permission(0); p < permissionCount; p++ {
		out = append(out, p)
	}
	return out
}

// ParsePermission converts a wire string to a Permission.
// Unknown strings are an error; there is no fallback value.
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	// "create-folder" and "createfolder" show up in hand-typed CLI input
	switch s {
	case "create-folder", "createfolder":
		s = "create_folder"
	}
	for p, name := range permissionNames {
		if name == s {
			return Permission(p), nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q (valid: %s)", s, strings.Join(permissionNames[:], ", "))
}

// Valid reports whether p is inside the closed vocabulary.
func (p Permission) Valid() bool {
	return p < permissionCount
}

func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
	return permissionNames[p]
}

func (p Permission) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid permission %d", uint8(p))
	}
	return json.Marshal(permissionNames[p])
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PermissionSet is an unordered set of permissions.
// The zero value is the empty set.
type PermissionSet uint8

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s = s.Add(p)
	}
	return s
}

// ParsePermissionSet parses a comma separated list such as "view,edit".
func ParsePermissionSet(list string) (PermissionSet, error) {
	var s PermissionSet
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePermission(part)
		if err != nil {
			return 0, err
		}
		s = s.Add(p)
	}
	return s, nil
}

func (s PermissionSet) Add(p Permission) PermissionSet {
	if !p.Valid() {
		return s
	}
	return s | 1<<p
}

func (s PermissionSet) Remove(p Permission) PermissionSet {
	return s &^ (1 << p)
}

// Toggle adds p when absent and removes it when present.
func (s PermissionSet) Toggle(p Permission) PermissionSet {
	if s.Has(p) {
		return s.Remove(p)
	}
	return s.Add(p)
}

func (s PermissionSet) Has(p Permission) bool {
	return p.Valid() && s&(1<<p) != 0
}

func (s PermissionSet) Len() int {
	n := 0
	for p := Permission(0); p < permissionCount; p++ {
		if s.Has(p) {
			n++
		}
	}
	return n
}

func (s PermissionSet) IsEmpty() bool {
	return s == 0
}

// Slice returns the members in vocabulary order.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, s.Len())
	for p := Permission(0); p < permissionCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Diff returns the permissions in s that are missing from other.
func (s PermissionSet) Diff(other PermissionSet) PermissionSet {
	return s &^ other
}

// Union returns the permissions in either set.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	return s | other
}

func (s PermissionSet) String() string {
	names := make([]string, 0, s.Len())
	for _, p := range s.Slice() {
		names = append(names, p.String())
	}
	return strings.Join(names, ",")
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}
