package scheduling

import (
	"fmt"
	"strings"
)

// CancelPolicy decides who may cancel an appointment.
type CancelPolicy string

const (
	// CancelAny lets any logged in user cancel any appointment.
	CancelAny CancelPolicy = "any"
	// CancelOwner restricts cancellation to the appointment's patient or
	// caregiver.
	CancelOwner CancelPolicy = "owner"
)

func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch p := CancelPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CancelAny, nil
	case CancelAny, CancelOwner:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cancel policy %q", s)
	}
}

// SlotMode decides whether a caregiver may hold several slots on one date.
type SlotMode string

const (
	SlotSet      SlotMode = "set"
	SlotMultiset SlotMode = "multiset"
)

func ParseSlotMode(s string) (SlotMode, error) {
	switch m := SlotMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SlotSet, nil
	case SlotSet, SlotMultiset:
		return m, nil
	default:
		return "", fmt.Errorf("unknown slot mode %q", s)
	}
}

type Options struct {
	CancelPolicy CancelPolicy
	SlotMode     SlotMode
}

func (o Options) withDefaults() Options {
	if o.CancelPolicy == "" {
		o.CancelPolicy = CancelAny
	}
	if o.SlotMode == "" {
		o.SlotMode = SlotSet
	}
	return o
}
