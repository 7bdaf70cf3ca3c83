// Package agronomy derives agricultural indicators from weather readings.
//
// Every function here is pure: callers pass provider readings (and the current time
// where it matters) and receive new values. The formulas are coarse heuristics, not
// physical models:
//
//	soil moisture  min(100, humidity*0.7 + precipitation*10), clamped to [0, 100]
//	UV index       max(0, 10 - cloudCover/10), clamped to [0, 10]
//	GDD            max(0, temperature - 10), one day, base 10°C, no running total
//
// Recommendations are fixed French strings selected by independent threshold checks
// and returned in check order. Daily forecasts group 3-hour samples by calendar day in
// the forecast location's UTC offset. Alert identifiers are "<type>-<YYYY-MM-DD>" so
// the same condition on the same day always produces the same ID.
package agronomy
