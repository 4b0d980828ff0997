package shipment

import (
	"errors"
	"strings"
)

// Status is a shipment's delivery stage. Values are uppercase on the wire;
// Normalize is the single place carrier casing and aliases get folded.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPickedUp       Status = "PICKED_UP"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
)

// ErrUnknownStatus signals a status outside the enum after alias folding.
var ErrUnknownStatus = errors.New("shipment: unknown status")

// aliases maps carrier-reported names onto the canonical enum.
var aliases = map[string]Status{
	"SHIPPED":   StatusPickedUp,
	"COLLECTED": StatusDelivered,
}

// transitions is the authoritative adjacency table. Forward-only: every
// status has exactly one successor and DELIVERED has none.
var transitions = map[Status]Status{
	StatusCreated:        StatusPickedUp,
	StatusPickedUp:       StatusInTransit,
	StatusInTransit:      StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

// Normalize folds casing and carrier aliases into a canonical Status.
func Normalize(raw string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if canonical, ok := aliases[upper]; ok {
		return canonical, nil
	}
	s := Status(upper)
	if _, ok := transitions[s]; ok || s == StatusDelivered {
		return s, nil
	}
	return "", ErrUnknownStatus
}

// CanTransition reports whether target is the immediate successor of from.
func CanTransition(from, target Status) bool {
	return transitions[from] == target
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered
}
