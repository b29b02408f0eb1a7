package util

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// NullableString trims s and returns nil when nothing is left.
func NullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// NullableStringPtr is NullableString for optional input.
func NullableStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return NullableString(*s)
}

func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
