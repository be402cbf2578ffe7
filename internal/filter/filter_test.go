package filter

import (
	"testing"

	"github.com/keystone-cm/filedesk/internal/models"
)

func TestMatchesName(t *testing.T) {
	tests := []struct {
		name string
		file string
		cfg  Config
		want bool
	}{
		{"empty config", "a.txt", Config{}, true},
		{"include hit", "a.txt", Config{Include: []string{"*.txt"}}, true},
		{"include miss", "a.dat", Config{Include: []string{"*.txt"}}, false},
		{"exclude wins", "a.txt", Config{Include: []string{"*"}, Exclude: []string{"a.*"}}, false},
		{"search case insensitive", "Report.PDF", Config{Search: []string{"report"}}, true},
		{"all search terms", "report.pdf", Config{Search: []string{"report", "xls"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesName(tt.file, tt.cfg); got != tt.want {
				t.Errorf("MatchesName(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestMatchesAnyPath(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"/report.pdf", "**/report.pdf", true},
		{"/a/b/report.pdf", "**/report.pdf", true},
		{"/projects", "projects/**", true},
		{"/projects/x/y", "/projects/**", true},
		{"/other/x", "projects/**", false},
		{"/run_1/out", "run_*/out", true},
		{"/run_1/x/out", "run_*/out", false},
		{"/a/b/c", "a/**/c", true},
		{"/a/c", "a/**/c", true},
		{"/anything/at/all", "**", true},
	}

	for _, tt := range tests {
		if got := MatchesAnyPath(tt.path, []string{tt.pattern}); got != tt.want {
			t.Errorf("MatchesAnyPath(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestApply(t *testing.T) {
	entries := []models.Entry{
		{ID: "1", Name: "docs", Kind: models.KindFolder},
		{ID: "2", Name: "notes.txt", Kind: models.KindFile, ParentID: "1"},
		{ID: "3", Name: "data.csv", Kind: models.KindFile},
	}
	paths := map[models.EntryID]string{"1": "/docs", "2": "/docs/notes.txt", "3": "/data.csv"}
	pathOf := func(e models.Entry) string { return paths[e.ID] }

	tests := []struct {
		name string
		cfg  Config
		want []models.EntryID
	}{
		{"no filter", Config{}, []models.EntryID{"1", "2", "3"}},
		{"files only", Config{FilesOnly: true}, []models.EntryID{"2", "3"}},
		{"folders only", Config{FoldersOnly: true}, []models.EntryID{"1"}},
		{"under docs", Config{Paths: []string{"docs/**"}}, []models.EntryID{"1", "2"}},
		{"path and include", Config{Paths: []string{"docs/**"}, Include: []string{"*.txt"}}, []models.EntryID{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(entries, tt.cfg, pathOf)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() returned %d entries, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].ID != tt.want[i] {
					t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestParsePatternList(t *testing.T) {
	got := ParsePatternList(" *.dat, ,*.txt ")
	want := []string{"*.dat", "*.txt"}
	if len(got) != len(want) {
		t.Fatalf("ParsePatternList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ParsePatternList("") != nil {
		t.Error("ParsePatternList(\"\") should be nil")
	}
}
