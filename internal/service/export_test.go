package service

import "time"

// SetPartyClock replaces the clock used to stamp chat messages.
func SetPartyClock(s *PartyService, now func() time.Time) {
	s.now = now
}
