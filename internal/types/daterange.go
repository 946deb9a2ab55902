package types

import (
	"strconv"
	"strings"
	"time"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
)

// CreatedRange is a half-open [GTE, LT) range in epoch seconds applied to a
// subscription's created timestamp. A zero bound means the bound is absent.
type CreatedRange struct {
	GTE int64
	LT  int64
}

// NewCreatedRange builds the created filter from the optional --created-on
// and --until calendar dates (YYYY-MM-DD).
//
//   - created-on alone covers the whole UTC day: [00:00 of D, 00:00 of D+1).
//   - until alone covers everything up to and including day D.
//   - Both together take GTE from created-on and LT from until's day+1.
//
// Day boundaries are computed as UTC epoch midnights, never local time.
// Returns nil when neither date is given.
func NewCreatedRange(createdOn, until string) (*CreatedRange, error) {
	if createdOn == "" && until == "" {
		return nil, nil
	}

	var r CreatedRange
	var hasGTE bool

	if createdOn != "" {
		day, err := parseUTCDay("created-on", createdOn)
		if err != nil {
			return nil, err
		}
		r.GTE = day.Unix()
		r.LT = day.AddDate(0, 0, 1).Unix()
		hasGTE = true
	}

	if until != "" {
		day, err := parseUTCDay("until", until)
		if err != nil {
			return nil, err
		}
		// Exclusive upper bound at the start of the following day so the
		// whole of day D is included.
		r.LT = day.AddDate(0, 0, 1).Unix()
	}

	if hasGTE && r.GTE >= r.LT {
		return nil, ierr.NewError("inconsistent date range").
			WithHint("--created-on must be on or before --until").
			WithReportableDetails(map[string]any{
				"created_on": createdOn,
				"until":      until,
			}).
			Mark(ierr.ErrValidation)
	}

	return &r, nil
}

// parseUTCDay parses a YYYY-MM-DD string into the UTC midnight opening that
// calendar day. Rejects malformed strings, out-of-range components, and
// dates that do not exist (e.g. 2024-02-30).
func parseUTCDay(flag, value string) (time.Time, error) {
	invalid := func(hint string) error {
		return ierr.NewErrorf("invalid --%s date", flag).
			WithHint(hint).
			WithReportableDetails(map[string]any{flag: value}).
			Mark(ierr.ErrValidation)
	}

	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return time.Time{}, invalid("Expected format: YYYY-MM-DD")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, invalid("Expected format: YYYY-MM-DD")
		}
		nums[i] = n
	}

	year, month, day := nums[0], nums[1], nums[2]
	if year < 1900 || year > 2100 {
		return time.Time{}, invalid("Year must be between 1900 and 2100")
	}
	if month < 1 || month > 12 {
		return time.Time{}, invalid("Month must be between 1 and 12")
	}
	if day < 1 || day > 31 {
		return time.Time{}, invalid("Day must be between 1 and 31")
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflows (Feb 30 becomes Mar 1), so a changed
	// component means the calendar date does not exist.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, invalid("Date does not exist in the calendar (e.g. February 30)")
	}

	return t, nil
}
