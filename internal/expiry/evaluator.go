// Package expiry computes how many days remain on a visa and which severity
// tier that count falls into.
package expiry

import (
	"math"
	"time"
)

// Tier is the severity bucket derived from days remaining.
type Tier string

const (
	TierNone     Tier = "none"
	TierUrgent   Tier = "urgent"
	TierCritical Tier = "critical"
)

// Thresholds, inclusive upper bounds in days.
const (
	criticalMaxDays = 2
	urgentMaxDays   = 10
)

// Assessment is the result of evaluating one application against a reference
// date.
type Assessment struct {
	DaysRemaining int
	Tier          Tier
	ExpiryDate    time.Time
}

// DaysRemaining is the ceiling of the calendar-day difference between expiry
// and ref. A fractional remainder rounds up, so the current day counts as one
// remaining day until midnight. The result may be negative.
func DaysRemaining(ref, expiry time.Time) int {
	diff := expiry.Sub(ref)
	return int(math.Ceil(diff.Hours() / 24))
}

// ClassifyDays maps a days-remaining count onto a tier. Expired visas
// (negative counts) are past helping and classify as none.
func ClassifyDays(days int) Tier {
	switch {
	case days >= 0 && days <= criticalMaxDays:
		return TierCritical
	case days > criticalMaxDays && days <= urgentMaxDays:
		return TierUrgent
	default:
		return TierNone
	}
}

// Evaluate assesses an application's expiry date against ref. A nil expiry is
// indeterminate: ok is false and the caller skips the record without error.
func Evaluate(ref time.Time, expiry *time.Time) (Assessment, bool) {
	if expiry == nil {
		return Assessment{}, false
	}

	days := DaysRemaining(ref, *expiry)
	return Assessment{
		DaysRemaining: days,
		Tier:          ClassifyDays(days),
		ExpiryDate:    *expiry,
	}, true
}
