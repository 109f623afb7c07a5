package events

import (
	"strconv"
	"strings"
	"time"
)

const (
	// TypeBreakerTransition is emitted on every circuit breaker phase change.
	TypeBreakerTransition = "breaker.transition"
	// TypeGlobalEmergency is emitted when the registry-wide emergency flag
	// is toggled through the admin capability.
	TypeGlobalEmergency = "breaker.global_emergency"
)

// BreakerTransition records a phase change for a keyed breaker.
type BreakerTransition struct {
	Key       string
	From      string
	To        string
	Reason    string
	Timestamp time.Time
}

func (BreakerTransition) EventType() string { return TypeBreakerTransition }

func (e BreakerTransition) Attributes() map[string]string {
	return map[string]string{
		"key":       strings.TrimSpace(e.Key),
		"from":      strings.TrimSpace(e.From),
		"to":        strings.TrimSpace(e.To),
		"reason":    strings.TrimSpace(e.Reason),
		"timestamp": strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}

// GlobalEmergency records the registry-wide halt flag changing state.
type GlobalEmergency struct {
	Enabled   bool
	Timestamp time.Time
}

func (GlobalEmergency) EventType() string { return TypeGlobalEmergency }

func (e GlobalEmergency) Attributes() map[string]string {
	return map[string]string{
		"enabled":   strconv.FormatBool(e.Enabled),
		"timestamp": strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}
