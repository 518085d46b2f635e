package domain

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDisplayName(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		reject FieldRejection
	}{
		{in: "Jo", reject: RejectNameTooShort},
		{in: "  Jo  ", reject: RejectNameTooShort},
		{in: "12", reject: RejectNameTooShort},
		{in: "123", reject: RejectNameNoLetters},
		{in: "  John Doe ", want: "John Doe"},
		{in: "Íñigo", want: "Íñigo"},
	}
	for _, tc := range cases {
		got, reject := NormalizeDisplayName(tc.in)
		assert.Equal(t, tc.reject, reject, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizePlate(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		reject FieldRejection
	}{
		{in: "abc123", want: "ABC123"},
		{in: " abc-123 ", want: "ABC123"},
		{in: "ab12cd", reject: RejectPlateFormat},
		{in: "abcd123", reject: RejectPlateFormat},
		{in: "", reject: RejectPlateFormat},
	}
	for _, tc := range cases {
		got, reject := NormalizePlate(tc.in)
		assert.Equal(t, tc.reject, reject, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

// Accepted plates always match LLLDDD and normalizing them again is a no-op.
func TestNormalizePlateProperty(t *testing.T) {
	strict := regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
	alphabet := []rune("abcXYZ0123456789 -._ñ")
	rng := rand.New(rand.NewSource(42))

	accepted := 0
	for i := 0; i < 5000; i++ {
		n := rng.Intn(10)
		buf := make([]rune, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		plate, reject := NormalizePlate(string(buf))
		if reject != "" {
			assert.Empty(t, plate)
			continue
		}
		accepted++
		assert.Regexp(t, strict, plate)
		again, reject := NormalizePlate(plate)
		assert.Empty(t, reject)
		assert.Equal(t, plate, again)
	}

	for _, raw := range []string{"xyz987", "A B C 1 2 3", "a.b.c-0.0.0"} {
		plate, reject := NormalizePlate(raw)
		assert.Empty(t, reject, raw)
		assert.Regexp(t, strict, plate)
	}
	t.Logf("accepted %d random plates", accepted)
}

func TestNormalizeNationalID(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		reject FieldRejection
	}{
		{in: "12a34", reject: RejectNationalIDLength},
		{in: "123456", want: "123456"},
		{in: "1.234.567.890", want: "1234567890"},
		{in: "12345678901", reject: RejectNationalIDLength},
	}
	for _, tc := range cases {
		got, reject := NormalizeNationalID(tc.in)
		assert.Equal(t, tc.reject, reject, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
