// internal/service/hours.go
package service

import (
	"fmt"
	"time"
)

// SendWindow is the daily sending-hours gate: dispatch happens only when the
// local hour-of-day is inside [StartHour, EndHour). Only the hour is
// compared, matching the operator-facing "07:00-21:00" policy.
type SendWindow struct {
	Location  *time.Location
	StartHour int
	EndHour   int
}

// NewSendWindow resolves an IANA timezone name into a gate.
func NewSendWindow(timezone string, startHour, endHour int) (SendWindow, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return SendWindow{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if startHour < 0 || startHour > 23 || endHour < 1 || endHour > 24 || startHour >= endHour {
		return SendWindow{}, fmt.Errorf("invalid send window %02d-%02d", startHour, endHour)
	}
	return SendWindow{Location: loc, StartHour: startHour, EndHour: endHour}, nil
}

// Allows reports whether t falls inside the window.
func (w SendWindow) Allows(t time.Time) bool {
	h := t.In(w.Location).Hour()
	return h >= w.StartHour && h < w.EndHour
}
