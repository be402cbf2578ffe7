package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "Reports", "Reports", false},
		{"trims", "  Reports \t", "Reports", false},
		{"inner spaces kept", "Q3  reports", "Q3  reports", false},
		{"unicode", "Überblick", "Überblick", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"slash", "a/b", "", true},
		{"backslash", `a\b`, "", true},
		{"control char", "a\x01b", "", true},
		{"max length", strings.Repeat("é", MaxNameLength), strings.Repeat("é", MaxNameLength), false},
		{"too long", strings.Repeat("a", MaxNameLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeNameBlankSentinel(t *testing.T) {
	_, err := NormalizeName("   ")
	if !errors.Is(err, ErrBlankName) {
		t.Errorf("NormalizeName(blank) error = %v, want ErrBlankName", err)
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"simple", "file.txt", false},
		{"version dots", "file.v1.2.3.txt", false},
		{"hidden", ".hidden", false},
		{"double dot inside", "data..v2.csv", false},
		{"spaces", "my file.txt", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"unix traversal", "../etc/passwd", true},
		{"windows traversal", `..\windows\system32`, true},
		{"unix separator", "dir/file.txt", true},
		{"windows separator", `dir\file.txt`, true},
		{"null byte", "file\x00.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathInDirectory(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		path    string
		baseDir string
		wantErr bool
	}{
		{"relative inside", "sub/file.txt", base, false},
		{"plain file", "file.txt", base, false},
		{"absolute inside", filepath.Join(base, "file.txt"), base, false},
		{"cleaned back inside", "sub/../file.txt", base, false},
		{"escapes", "../outside.txt", base, true},
		{"escapes deep", "../../../etc/passwd", base, true},
		{"absolute outside", filepath.Join(filepath.Dir(base), "other.txt"), base, true},
		{"empty path", "", base, true},
		{"empty base", "file.txt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathInDirectory(tt.path, tt.baseDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathInDirectory(%q, %q) error = %v, wantErr %v", tt.path, tt.baseDir, err, tt.wantErr)
			}
		})
	}
}
