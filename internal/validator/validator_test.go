package validator

import "testing"

func TestValidate(t *testing.T) {
	v := New([]string{"instagram.com", "cdninstagram.com"}, []string{".exe", ".sh"})

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"allowed host, jpg path", "https://scontent.cdninstagram.com/photo.jpg", true},
		{"allowed host substring", "https://www.instagram.com/p/abc123/", true},
		{"disallowed host", "https://evil.example.com/photo.jpg", false},
		{"http scheme rejected", "http://instagram.com/photo.jpg", false},
		{"denied extension", "https://instagram.com/payload.exe", false},
		{"denied extension case-insensitive", "https://instagram.com/payload.EXE", false},
		{"malformed url", "not a url at all://", false},
		{"empty host", "https:///photo.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Validate(tt.url); got != tt.want {
				t.Errorf("Validate(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateEmptyAllowListAllowsAnyHost(t *testing.T) {
	v := New(nil, []string{".exe"})
	if !v.Validate("https://anything.example.net/image.jpg") {
		t.Error("expected empty allow list to permit any https host")
	}
}
