package shipment

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Status
	}{
		{"CREATED", StatusCreated},
		{"picked_up", StatusPickedUp},
		{" in_transit ", StatusInTransit},
		{"OUT_FOR_DELIVERY", StatusOutForDelivery},
		{"delivered", StatusDelivered},
		// carrier aliases fold onto the canonical enum
		{"SHIPPED", StatusPickedUp},
		{"shipped", StatusPickedUp},
		{"COLLECTED", StatusDelivered},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := Normalize("TELEPORTED"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	forward := []struct{ from, to Status }{
		{StatusCreated, StatusPickedUp},
		{StatusPickedUp, StatusInTransit},
		{StatusInTransit, StatusOutForDelivery},
		{StatusOutForDelivery, StatusDelivered},
	}
	for _, e := range forward {
		if !CanTransition(e.from, e.to) {
			t.Errorf("%s -> %s should be allowed", e.from, e.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusInTransit, StatusCreated},         // backward
		{StatusCreated, StatusInTransit},         // skip
		{StatusDelivered, StatusOutForDelivery},  // terminal
		{StatusPickedUp, StatusOutForDelivery},   // skip
		{StatusOutForDelivery, StatusOutForDelivery},
	}
	for _, e := range denied {
		if CanTransition(e.from, e.to) {
			t.Errorf("%s -> %s should be rejected", e.from, e.to)
		}
	}
}
