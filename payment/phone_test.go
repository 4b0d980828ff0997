package payment

import (
	"errors"
	"testing"
)

func TestNormalizeMSISDN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"+254 712 345 678", "254712345678"},
		{"0700000000", "254700000000"},
		{"(0712) 345-678", "254712345678"},
		// longer than nine digits without a recognized prefix: keep the tail
		{"00254712345678", "254712345678"},
	}

	for _, tc := range cases {
		got, err := NormalizeMSISDN(tc.in)
		if err != nil {
			t.Errorf("NormalizeMSISDN(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeMSISDNRejectsShortInput(t *testing.T) {
	for _, in := range []string{"123", "", "07123", "abc"} {
		if _, err := NormalizeMSISDN(in); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("NormalizeMSISDN(%q): expected ErrInvalidPhone, got %v", in, err)
		}
	}
}
