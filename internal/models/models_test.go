package models

import (
	"encoding/json"
	"testing"
)

func TestEntryIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want EntryID
	}{
		{"string", `"42"`, "42"},
		{"number", `42`, "42"},
		{"float number", `42.0`, "42"},
		{"leading zeros", `"007"`, "7"},
		{"uuid", `"9b2f0c1e-3d4a-4b7a-9c55-0e8b1f2a3c4d"`, "9b2f0c1e-3d4a-4b7a-9c55-0e8b1f2a3c4d"},
		{"null", `null`, RootID},
		{"empty string", `""`, RootID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got EntryID
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.json, err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.json, got, tt.want)
			}
		})
	}
}

func TestEntryIDNumberAndStringCompareEqual(t *testing.T) {
	var a, b EntryID
	if err := json.Unmarshal([]byte(`17`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`"17"`), &b); err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("numeric id %q != string id %q", a, b)
	}
}

func TestEntryIDMarshalRootAsNull(t *testing.T) {
	data, err := json.Marshal(struct {
		ParentID EntryID `json:"parent_id"`
	}{RootID})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"parent_id":null}` {
		t.Errorf("Marshal = %s, want {\"parent_id\":null}", data)
	}
}

func TestParseEntryID(t *testing.T) {
	for in, want := range map[string]EntryID{
		"":      RootID,
		"root":  RootID,
		"null":  RootID,
		" 12 ":  "12",
		"abc-1": "abc-1",
	} {
		if got := ParseEntryID(in); got != want {
			t.Errorf("ParseEntryID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEntryUnmarshalKindVariants(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Kind
	}{
		{"kind field", `{"id":1,"name":"a","kind":"folder"}`, KindFolder},
		{"type field", `{"id":1,"name":"a","type":"file","size":10}`, KindFile},
		{"is_folder true", `{"id":1,"name":"a","is_folder":true}`, KindFolder},
		{"is_folder false", `{"id":1,"name":"a","is_folder":false}`, KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entry
			if err := json.Unmarshal([]byte(tt.json), &e); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if e.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.want)
			}
			if e.ID != "1" {
				t.Errorf("ID = %q, want \"1\"", e.ID)
			}
		})
	}
}

func TestEntryUnmarshalRejectsUnknownKind(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"id":1,"name":"a","kind":"symlink"}`), &e); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := json.Unmarshal([]byte(`{"id":1,"name":"a"}`), &e); err == nil {
		t.Error("expected error for missing kind")
	}
}

func TestParsePermission(t *testing.T) {
	for _, p := range AllPermissions() {
		got, err := ParsePermission(p.String())
		if err != nil {
			t.Fatalf("ParsePermission(%q) error = %v", p.String(), err)
		}
		if got != p {
			t.Errorf("ParsePermission(%q) = %v, want %v", p.String(), got, p)
		}
	}

	if got, err := ParsePermission("Create-Folder"); err != nil || got != PermissionCreateFolder {
		t.Errorf("ParsePermission(Create-Folder) = %v, %v", got, err)
	}

	if _, err := ParsePermission("admin"); err == nil {
		t.Error("expected error for unknown permission")
	}
}

func TestPermissionSet(t *testing.T) {
	s := NewPermissionSet(PermissionEdit, PermissionView)
	if !s.Has(PermissionView) || !s.Has(PermissionEdit) {
		t.Errorf("set %v missing members", s)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if got := s.String(); got != "view,edit" {
		t.Errorf("String() = %q, want %q", got, "view,edit")
	}

	s = s.Toggle(PermissionView)
	if s.Has(PermissionView) {
		t.Error("Toggle did not remove view")
	}
	s = s.Toggle(PermissionDelete)
	if !s.Has(PermissionDelete) {
		t.Error("Toggle did not add delete")
	}

	if got := NewPermissionSet(PermissionView, PermissionEdit).Diff(NewPermissionSet(PermissionEdit)); got != NewPermissionSet(PermissionView) {
		t.Errorf("Diff = %v, want view", got)
	}
	if got := NewPermissionSet(PermissionView).Union(NewPermissionSet(PermissionEdit, PermissionView)); got != NewPermissionSet(PermissionView, PermissionEdit) {
		t.Errorf("Union = %v, want view,edit", got)
	}
}

func TestPermissionSetJSON(t *testing.T) {
	s := NewPermissionSet(PermissionView, PermissionCreateFolder)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["view","create_folder"]` {
		t.Errorf("Marshal = %s", data)
	}

	var back PermissionSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Errorf("Unmarshal = %v, want %v", back, s)
	}

	if err := json.Unmarshal([]byte(`["view","superuser"]`), &back); err == nil {
		t.Error("expected error for unknown permission in set")
	}

	empty, _ := json.Marshal(PermissionSet(0))
	if string(empty) != `[]` {
		t.Errorf("empty set = %s, want []", empty)
	}
}

func TestParsePermissionSet(t *testing.T) {
	s, err := ParsePermissionSet("view, edit,,upload")
	if err != nil {
		t.Fatal(err)
	}
	if s != NewPermissionSet(PermissionView, PermissionEdit, PermissionUpload) {
		t.Errorf("ParsePermissionSet = %v", s)
	}
	if _, err := ParsePermissionSet("view,bogus"); err == nil {
		t.Error("expected error")
	}
}

func TestRootShimNormalize(t *testing.T) {
	entries := []Entry{
		{ID: "10", Name: "a", Kind: KindFolder, ParentID: "1"},
		{ID: "11", Name: "b", Kind: KindFolder, ParentID: "2"},
		{ID: "12", Name: "c", Kind: KindFolder, ParentID: RootID},
		{ID: "13", Name: "d", Kind: KindFolder, ParentID: "10"},
	}

	got, n := NewRootShim().Normalize(entries)
	if n != 2 {
		t.Errorf("rewritten = %d, want 2", n)
	}
	for _, e := range got[:3] {
		if e.ParentID != RootID {
			t.Errorf("entry %s ParentID = %q, want root", e.ID, e.ParentID)
		}
	}
	if got[3].ParentID != "10" {
		t.Errorf("entry 13 ParentID = %q, want 10", got[3].ParentID)
	}
	if entries[0].ParentID != "1" {
		t.Error("Normalize mutated its input")
	}
}

func TestRootShimKeepsRealFolderWithLegacyID(t *testing.T) {
	entries := []Entry{
		{ID: "1", Name: "real", Kind: KindFolder, ParentID: RootID},
		{ID: "5", Name: "child", Kind: KindFolder, ParentID: "1"},
		{ID: "6", Name: "top", Kind: KindFolder, ParentID: "2"},
	}

	got, n := NewRootShim().Normalize(entries)
	if n != 1 {
		t.Errorf("rewritten = %d, want 1", n)
	}
	if got[1].ParentID != "1" {
		t.Errorf("child of real folder 1 was rewritten to %q", got[1].ParentID)
	}
	if got[2].ParentID != RootID {
		t.Errorf("legacy parent 2 not rewritten: %q", got[2].ParentID)
	}
}

func TestRootShimNormalizeID(t *testing.T) {
	shim := NewRootShim()
	known := map[EntryID]bool{"2": true}
	isKnown := func(id EntryID) bool { return known[id] }

	tests := []struct {
		in   EntryID
		want EntryID
	}{
		{"1", RootID},
		{"2", "2"},
		{"42", "42"},
		{RootID, RootID},
	}
	for _, tt := range tests {
		if got := shim.NormalizeID(tt.in, isKnown); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := shim.NormalizeID("2", nil); got != RootID {
		t.Errorf("NormalizeID(2, nil) = %q, want root", got)
	}
}

func TestMoveRequestIsNoOp(t *testing.T) {
	e := Entry{ID: "5", ParentID: "3"}
	if !NewMoveRequest(e, "3").IsNoOp() {
		t.Error("move to current parent should be a no-op")
	}
	if NewMoveRequest(e, RootID).IsNoOp() {
		t.Error("move to root should not be a no-op")
	}
}
