package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	assert.True(t, Email("ana@x.com"))
	assert.True(t, Email(" ANA@X.COM "))
	assert.False(t, Email("ana@x"))
	assert.False(t, Email("@x.com"))
	assert.False(t, Email("ana x@x.com"))
	assert.False(t, Email(""))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@x.com", NormalizeEmail(" ANA@x.com "))
}

func TestName(t *testing.T) {
	assert.True(t, Name("Ana"))
	assert.False(t, Name(""))
	assert.False(t, Name("   "))
	assert.False(t, Name(strings.Repeat("a", NameMaxLen+1)))
	assert.True(t, Name(strings.Repeat("a", NameMaxLen)))
}

func TestPassword(t *testing.T) {
	assert.True(t, Password("secret1"))
	assert.True(t, Password("secret"))
	assert.False(t, Password("short"))
}

func TestPhone(t *testing.T) {
	assert.True(t, Phone("+33 6 12 34 56 78"))
	assert.True(t, Phone("0612345678"))
	assert.True(t, Phone("(555) 123-4567"))
	assert.False(t, Phone("not-a-phone"))
	assert.False(t, Phone("12"))
}

func TestURL(t *testing.T) {
	assert.True(t, URL("https://example.com/profile"))
	assert.True(t, URL("http://example.com"))
	assert.False(t, URL("ftp://example.com"))
	assert.False(t, URL("example.com"))
	assert.False(t, URL("https://"))
}

func TestHexColor(t *testing.T) {
	normalized, ok := HexColor("FFFFFF")
	assert.True(t, ok)
	assert.Equal(t, "#FFFFFF", normalized)

	normalized, ok = HexColor("#1a2b3c")
	assert.True(t, ok)
	assert.Equal(t, "#1A2B3C", normalized)

	_, ok = HexColor("12345")
	assert.False(t, ok)
	_, ok = HexColor("#GGGGGG")
	assert.False(t, ok)
	_, ok = HexColor("")
	assert.False(t, ok)
}

func TestErrorsCollect(t *testing.T) {
	var errs Errors
	assert.False(t, errs.Any())

	errs.Add("email", "Valid email is required")
	errs.Add("password", "Password must be at least 6 characters")

	assert.True(t, errs.Any())
	assert.Len(t, errs, 2)
	assert.Equal(t, "email", errs[0].Field)
}
