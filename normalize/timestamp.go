package normalize

import (
	"strings"
	"time"
)

const (
	encodedDateLayout = "20060102150405"
	encodedDateWidth  = len(encodedDateLayout)
)

// Zone is the fixed UTC-3 offset ledger dates are recorded in.
var Zone = time.FixedZone("UTC-3", -3*60*60)

// DecodeTimestamp parses a YYYYMMDDHHMMSS string. Longer input is truncated and shorter input is
// right-padded with '0' to 14 characters. It reports false for empty or unparsable input.
func DecodeTimestamp(encoded string) (time.Time, bool) {
	if encoded == "" {
		return time.Time{}, false
	}
	if len(encoded) > encodedDateWidth {
		encoded = encoded[:encodedDateWidth]
	} else {
		encoded += strings.Repeat("0", encodedDateWidth-len(encoded))
	}

	t, err := time.ParseInLocation(encodedDateLayout, encoded, Zone)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
