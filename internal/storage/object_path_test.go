package storage

import "testing"

func TestSanitizeFileBase(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"My Photo", "my-photo"},
		{"  trimmed  ", "trimmed"},
		{"UPPER_case-01", "upper_case-01"},
		{"///..///", ""},
		{"中文名字", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFileBase(tt.input); got != tt.want {
			t.Errorf("sanitizeFileBase(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{".png", "png"},
		{"JPG", "jpg"},
		{"", "bin"},
		{"  .webp ", "webp"},
	}
	for _, tt := range tests {
		if got := normalizeExtension(tt.input); got != tt.want {
			t.Errorf("normalizeExtension(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestJoinPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "uploads/a.png", "uploads/a.png"},
		{"media", "uploads/a.png", "media/uploads/a.png"},
		{"/media/", "/uploads/a.png", "media/uploads/a.png"},
	}
	for _, tt := range tests {
		if got := joinPrefix(tt.prefix, tt.key); got != tt.want {
			t.Errorf("joinPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestValidObjectPath(t *testing.T) {
	valid := []string{"uploads/2025/01/01/a.png", "generated/x.txt"}
	for _, p := range valid {
		if !validObjectPath(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}

	invalid := []string{"", " ", "/abs", "a/../b", "./a", "a//b"}
	for _, p := range invalid {
		if validObjectPath(p) {
			t.Errorf("expected %q to be rejected", p)
		}
	}
}
