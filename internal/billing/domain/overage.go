package domain

// OverageQuantity returns how far monthly usage runs past the plan's
// included allowance. A nil allowance means the kind is not metered.
func OverageQuantity(used int64, included *int64) int64 {
	if included == nil {
		return 0
	}
	over := used - *included
	if over < 0 {
		return 0
	}
	return over
}

// BillableMinutes converts a call duration to billed minutes, rounding any
// partial minute up. A 61 second call bills as 2 minutes.
func BillableMinutes(durationSeconds int) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return int64((durationSeconds + 59) / 60)
}
