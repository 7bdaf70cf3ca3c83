package agronomy

import (
	"fmt"
	"time"
)

var (
	dayNames     = [...]string{"Dimanche", "Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi"}
	weekdaysFR   = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	monthNamesFR = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// DayName returns the capitalised French weekday name of t.
func DayName(t time.Time) string {
	return dayNames[t.Weekday()]
}

// FormatDateFR formats t like "lundi 3 juin".
func FormatDateFR(t time.Time) string {
	return fmt.Sprintf("%s %d %s", weekdaysFR[t.Weekday()], t.Day(), monthNamesFR[t.Month()-1])
}
