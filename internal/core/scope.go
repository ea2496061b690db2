package core

import (
	"time"
)

// Participant roles. OPERATOR is the fee beneficiary and never pays the
// operator fee itself.
const (
	RoleConsumer = "CONSUMER"
	RoleProsumer = "PROSUMER"
	RoleOperator = "OPERATOR"
)

// Cycle / day status values. closed is terminal.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

const (
	dateLayout  = "2006-01-02"
	cycleLayout = "2006-01"
)

// ParseTradingDate validates a YYYY-MM-DD trading date and returns its UTC
// day window [start, end).
func ParseTradingDate(dateStr string) (start, end time.Time, err error) {
	t, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, Validationf("date must be YYYY-MM-DD: %q", dateStr)
	}
	return t, t.AddDate(0, 0, 1), nil
}

// CycleLabelForDate derives the YYYY-MM billing cycle label a trading date
// belongs to.
func CycleLabelForDate(dateStr string) (string, error) {
	t, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return "", Validationf("date must be YYYY-MM-DD: %q", dateStr)
	}
	return t.Format(cycleLayout), nil
}

// ValidCycleLabel reports whether label is a well-formed YYYY-MM cycle label.
func ValidCycleLabel(label string) bool {
	_, err := time.ParseInLocation(cycleLayout, label, time.UTC)
	return err == nil
}
