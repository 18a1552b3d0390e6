package domain

import "time"

// VenueStatus is connectivity for a single venue.
type VenueStatus struct {
	Venue      Venue     `json:"venue"`
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
	Stale      bool      `json:"stale"`
}

// Status is the adapter's connectivity and staleness view.
type Status struct {
	Connected  bool          `json:"connected"`
	LastUpdate time.Time     `json:"last_update"`
	Stale      bool          `json:"stale"`
	Venues     []VenueStatus `json:"venues"`
}
