package exclude

import "testing"

func TestMatcherPatterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		relPath  string
		isDir    bool
		want     bool
	}{
		{"glob matches base name", []string{"*.log"}, "sub/debug.log", false, true},
		{"glob misses other extension", []string{"*.log"}, "sub/debug.txt", false, false},
		{"dir pattern matches dir", []string{"logs/"}, "logs", true, true},
		{"dir pattern matches contents", []string{"logs/"}, "logs/old.log", false, true},
		{"dir pattern ignores similar prefix", []string{"logs/"}, "logs2/file", false, false},
		{"plain name matches exactly", []string{"node_modules"}, "node_modules", true, true},
		{"plain name matches nested file", []string{".DS_Store"}, "a/b/.DS_Store", false, true},
		{"plain name does not match dir base", []string{"build"}, "src/build", true, false},
		{"question glob", []string{"file?.txt"}, "file1.txt", false, true},
		{"empty pattern list", nil, "anything", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patterns)
			if got := m.IsExcluded(tt.relPath, tt.isDir); got != tt.want {
				t.Errorf("IsExcluded(%q, %v) = %v, want %v", tt.relPath, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestNilMatcherExcludesNothing(t *testing.T) {
	var m *Matcher
	if m.IsExcluded("anything", false) {
		t.Error("nil matcher excluded a path")
	}
}

func TestDefaultsCoverSecrets(t *testing.T) {
	m := NewWithDefaults([]string{"*.bak"})
	for _, p := range []string{".env", ".env.local", "keys/server.pem", "id.key", "old.bak", ".git"} {
		isDir := p == ".git"
		if !m.IsExcluded(p, isDir) {
			t.Errorf("default patterns should exclude %q", p)
		}
	}
	if m.IsExcluded("data.csv", false) {
		t.Error("default patterns excluded a normal file")
	}
}

func TestBlankPatternsAreDropped(t *testing.T) {
	m := New([]string{"", "  ", "*.log"})
	if !m.IsExcluded("x.log", false) {
		t.Error("real pattern lost among blanks")
	}
	if m.IsExcluded("x.txt", false) {
		t.Error("blank pattern matched something")
	}
}
