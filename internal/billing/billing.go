package billing

// Supported plan intervals.
const (
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

const day = 24 * 60 * 60

// NextPeriodEnd returns the Unix timestamp at which a billing period that
// starts at now ends. Periods are fixed length, not calendar aware.
// An unknown interval yields now unchanged.
func NextPeriodEnd(interval string, now int64) int64 {
	switch interval {
	case IntervalWeekly:
		return now + 7*day
	case IntervalMonthly:
		return now + 30*day
	case IntervalYearly:
		return now + 365*day
	default:
		return now
	}
}

// ValidInterval reports whether interval is one NextPeriodEnd understands.
func ValidInterval(interval string) bool {
	switch interval {
	case IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}
