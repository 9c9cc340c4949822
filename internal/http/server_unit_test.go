package http

import (
	"net/http/httptest"
	"regexp"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc.def.ghi", "abc.def.ghi"},
		{"abc.def.ghi", "abc.def.ghi"},
		{"  Bearer abc.def.ghi  ", "abc.def.ghi"},
	}
	for _, c := range cases {
		if got := bearerToken(c.header); got != c.want {
			t.Errorf("bearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:4444"
	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("remote addr: got %q", got)
	}

	r.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientIP(r); got != "198.51.100.2" {
		t.Errorf("x-real-ip: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "192.0.2.9, 198.51.100.2")
	if got := clientIP(r); got != "192.0.2.9" {
		t.Errorf("x-forwarded-for: got %q", got)
	}
}

func TestNewCardID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := newCardID()
		if err != nil {
			t.Fatalf("newCardID: %v", err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("id %q does not match 12-hex format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestImageExt(t *testing.T) {
	cases := []struct {
		contentType string
		ext         string
		allowed     bool
	}{
		{"image/png", ".png", true},
		{"image/jpeg", ".jpg", true},
		{"image/jpg", ".jpg", true},
		{"image/gif", "", false},
		{"application/pdf", "", false},
	}
	for _, c := range cases {
		ext, allowed := imageExt(c.contentType)
		if ext != c.ext || allowed != c.allowed {
			t.Errorf("imageExt(%q) = %q, %v; want %q, %v", c.contentType, ext, allowed, c.ext, c.allowed)
		}
	}
}
