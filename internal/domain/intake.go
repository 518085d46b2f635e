package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FieldRejection explains why an intake answer was not accepted.
type FieldRejection string

const (
	RejectNameTooShort     FieldRejection = "name_too_short"
	RejectNameNoLetters    FieldRejection = "name_no_letters"
	RejectPlateFormat      FieldRejection = "plate_format"
	RejectNationalIDLength FieldRejection = "national_id_length"
)

const (
	minNameLength       = 3
	minNationalIDLength = 6
	maxNationalIDLength = 10
)

var platePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

// NormalizeDisplayName trims the answer and checks length before content.
func NormalizeDisplayName(raw string) (string, FieldRejection) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < minNameLength {
		return "", RejectNameTooShort
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return name, ""
		}
	}
	return "", RejectNameNoLetters
}

// NormalizePlate upper-cases the answer, strips non-alphanumerics and checks LLLDDD.
func NormalizePlate(raw string) (string, FieldRejection) {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	plate := b.String()
	if !platePattern.MatchString(plate) {
		return "", RejectPlateFormat
	}
	return plate, ""
}

// NormalizeNationalID keeps the digits of the answer and checks 6 to 10 of them.
func NormalizeNationalID(raw string) (string, FieldRejection) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	id := b.String()
	if len(id) < minNationalIDLength || len(id) > maxNationalIDLength {
		return "", RejectNationalIDLength
	}
	return id, ""
}
