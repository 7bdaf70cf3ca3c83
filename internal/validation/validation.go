package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Location errors map to 400 INVALID_LOCATION.
var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
)

// ValidateLocation trims a city or "city,country" value and checks its rune
// length against [minLen, maxLen] (a bound of zero is not enforced). Letters,
// digits, spaces, commas, hyphens, apostrophes (straight or typographic) and
// dots are accepted, so names such as "Villeneuve-d'Ascq,FR" or "St. Malo"
// pass while path or query metacharacters do not.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	switch n := utf8.RuneCountInString(s); {
	case n == 0:
		return "", ErrLocationEmpty
	case minLen > 0 && n < minLen:
		return "", ErrLocationTooShort
	case maxLen > 0 && n > maxLen:
		return "", ErrLocationTooLong
	}
	if strings.IndexFunc(s, disallowedInLocation) >= 0 {
		return "", ErrLocationInvalidChars
	}
	return s, nil
}

func disallowedInLocation(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return false
	}
	switch r {
	case ' ', ',', '-', '\'', '’', '.':
		return false
	}
	return true
}

var (
	ErrCoordinatesRequired = errors.New("lat and lon are required")
	ErrCoordinatesInvalid  = errors.New("lat must be within [-90, 90] and lon within [-180, 180]")
	ErrDateRequired        = errors.New("date is required")
	ErrDateInvalid         = errors.New("date must be YYYY-MM-DD")
	ErrDateInFuture        = errors.New("date must not be in the future")
)

// ParseCoordinates parses lat/lon query values and checks their ranges.
func ParseCoordinates(latStr, lonStr string) (lat, lon float64, err error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return 0, 0, ErrCoordinatesRequired
	}
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, ErrCoordinatesInvalid
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, ErrCoordinatesInvalid
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, ErrCoordinatesInvalid
	}
	return lat, lon, nil
}

// ParseHistoryDate parses a YYYY-MM-DD date (UTC) that is not after today.
func ParseHistoryDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrDateRequired
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, ErrDateInvalid
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if d.After(today) {
		return time.Time{}, ErrDateInFuture
	}
	return d, nil
}
