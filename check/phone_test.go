package check

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+79160000001", "+79160000001"},
		{"79160000001", "+79160000001"},
		{"+7 (916) 000-00-01", "+79160000001"},
		{"  8.916.000.00.01 ", "+89160000001"},
		{"+14155550123", "+14155550123"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestNormalizePhone_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"not-a-phone",
		"+7916abc0001",
		"12345",                 // too short
		"+1234567890123456",     // too long
		"+7 916 000 00 01 ext5", // trailing garbage
	} {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidContact) {
			t.Fatalf("%q: expected ErrInvalidContact, got %v", in, err)
		}
	}
}
