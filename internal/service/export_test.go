package service

import "time"

// SetLedgerClock replaces the clock of s in tests.
func SetLedgerClock(s *LedgerService, now func() time.Time) {
	s.now = now
}

// SetSimulationClock replaces the clock of s in tests.
func SetSimulationClock(s *SimulationService, now func() time.Time) {
	s.now = now
}
