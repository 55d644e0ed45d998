package lockerd

import "time"

// Tariff is the static pricing configuration mapping elapsed usage time
// to a fee in satoshis
type Tariff struct {
	// UnitSeconds is the length of one billed unit
	UnitSeconds int64 `json:"unitSeconds"`
	// RateSats is the price of one billed unit
	RateSats int64 `json:"rateSats"`
}

// Quote converts elapsed usage time into a fee. Partial units round up and
// every session is billed at least one unit regardless of how short the
// usage was. Pure: identical inputs always yield identical output.
func (t Tariff) Quote(start, now time.Time) int64 {
	elapsed := int64(now.Sub(start) / time.Second)
	if elapsed < 1 {
		elapsed = 1
	}
	units := (elapsed + t.UnitSeconds - 1) / t.UnitSeconds
	if units < 1 {
		units = 1
	}
	return units * t.RateSats
}
