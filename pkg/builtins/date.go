package builtins

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Time values are milliseconds since the epoch in UTC, as float64 so that
// NaN can mark an invalid date.

const (
	msPerSecond = 1000.0
	msPerMinute = 60000.0
	msPerHour   = 3600000.0
	msPerDay    = 86400000.0
	maxTimeMs   = 8.64e15
)

var (
	weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthNames   = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	// cumulative days before each month in a common year
	monthStart = [13]float64{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 365}
)

// dateValue is the [[DateValue]] slot of Date objects.
type dateValue struct {
	t float64
}

func floorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	return r
}

func day(t float64) float64           { return math.Floor(t / msPerDay) }
func timeWithinDay(t float64) float64 { return floorMod(t, msPerDay) }

func daysInYear(y float64) float64 {
	if isLeapYear(y) {
		return 366
	}
	return 365
}

func isLeapYear(y float64) bool {
	return math.Mod(y, 4) == 0 && (math.Mod(y, 100) != 0 || math.Mod(y, 400) == 0)
}

func dayFromYear(y float64) float64 {
	return 365*(y-1970) + math.Floor((y-1969)/4) - math.Floor((y-1901)/100) + math.Floor((y-1601)/400)
}

func yearFromTime(t float64) float64 {
	y := math.Floor(t/(msPerDay*365.2425)) + 1970
	for dayFromYear(y)*msPerDay > t {
		y--
	}
	for dayFromYear(y+1)*msPerDay <= t {
		y++
	}
	return y
}

func dayWithinYear(t float64) float64 {
	return day(t) - dayFromYear(yearFromTime(t))
}

func monthStartDay(m int, leap bool) float64 {
	d := monthStart[m]
	if leap && m >= 2 {
		d++
	}
	return d
}

func monthFromTime(t float64) float64 {
	d := dayWithinYear(t)
	leap := isLeapYear(yearFromTime(t))
	m := 0
	for m < 11 && d >= monthStartDay(m+1, leap) {
		m++
	}
	return float64(m)
}

func dateFromTime(t float64) float64 {
	leap := isLeapYear(yearFromTime(t))
	return dayWithinYear(t) - monthStartDay(int(monthFromTime(t)), leap) + 1
}

func weekDay(t float64) float64 { return floorMod(day(t)+4, 7) }

func hourFromTime(t float64) float64 { return floorMod(math.Floor(t/msPerHour), 24) }
func minFromTime(t float64) float64  { return floorMod(math.Floor(t/msPerMinute), 60) }
func secFromTime(t float64) float64  { return floorMod(math.Floor(t/msPerSecond), 60) }
func msFromTime(t float64) float64   { return floorMod(t, msPerSecond) }

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func makeTime(hour, min, sec, ms float64) float64 {
	if !finite(hour, min, sec, ms) {
		return math.NaN()
	}
	return math.Trunc(hour)*msPerHour + math.Trunc(min)*msPerMinute + math.Trunc(sec)*msPerSecond + math.Trunc(ms)
}

func makeDay(year, month, date float64) float64 {
	if !finite(year, month, date) {
		return math.NaN()
	}
	y, m, dt := math.Trunc(year), math.Trunc(month), math.Trunc(date)
	ym := y + math.Floor(m/12)
	if math.Abs(ym) > 400000 {
		return math.NaN()
	}
	mn := int(floorMod(m, 12))
	days := dayFromYear(ym) + monthStartDay(mn, isLeapYear(ym))
	return days + dt - 1
}

func makeDate(day, t float64) float64 {
	if !finite(day, t) {
		return math.NaN()
	}
	tv := day*msPerDay + t
	if math.IsInf(tv, 0) {
		return math.NaN()
	}
	return tv
}

// timeClip implements TimeClip; the result is an integral time value or NaN.
func timeClip(t float64) float64 {
	if !finite(t) || math.Abs(t) > maxTimeMs {
		return math.NaN()
	}
	return math.Trunc(t) + 0
}

// localOffset returns the offset of the local time zone from UTC, in
// milliseconds, at UTC time t.
func localOffset(t float64) float64 {
	if !finite(t) {
		return 0
	}
	_, off := time.UnixMilli(int64(t)).In(time.Local).Zone()
	return float64(off) * msPerSecond
}

func localTime(t float64) float64 { return t + localOffset(t) }

// utcTime converts a local time value to UTC.
func utcTime(t float64) float64 {
	if !finite(t) {
		return math.NaN()
	}
	return t - localOffset(t-localOffset(t))
}

func zoneName(t float64) string {
	name, _ := time.UnixMilli(int64(t)).In(time.Local).Zone()
	return name
}

func formatYear(y float64) string {
	if y >= 0 {
		return fmt.Sprintf("%04d", int64(y))
	}
	return fmt.Sprintf("-%06d", int64(-y))
}

func formatOffset(off float64) string {
	sign := '+'
	if off < 0 {
		sign, off = '-', -off
	}
	mins := int64(off / msPerMinute)
	return fmt.Sprintf("%c%02d%02d", sign, mins/60, mins%60)
}

// dateString is the date part of toString: "Tue Feb 01 2022".
func dateString(tv float64) string {
	return fmt.Sprintf("%s %s %02d %s", weekdayNames[int(weekDay(tv))], monthNames[int(monthFromTime(tv))], int(dateFromTime(tv)), formatYear(yearFromTime(tv)))
}

func timeString(tv float64) string {
	return fmt.Sprintf("%02d:%02d:%02d GMT", int(hourFromTime(tv)), int(minFromTime(tv)), int(secFromTime(tv)))
}

func timeZoneString(t float64) string {
	s := formatOffset(localOffset(t))
	if name := zoneName(t); name != "" {
		s += " (" + name + ")"
	}
	return s
}

func toDateString(t float64) string {
	if math.IsNaN(t) {
		return "Invalid Date"
	}
	lt := localTime(t)
	return dateString(lt) + " " + timeString(lt) + timeZoneString(t)
}

func toUTCString(t float64) string {
	return fmt.Sprintf("%s, %02d %s %s %s", weekdayNames[int(weekDay(t))], int(dateFromTime(t)), monthNames[int(monthFromTime(t))], formatYear(yearFromTime(t)), timeString(t))
}

func toISOString(t float64) string {
	y := yearFromTime(t)
	var year string
	switch {
	case y >= 0 && y <= 9999:
		year = fmt.Sprintf("%04d", int64(y))
	case y < 0:
		year = fmt.Sprintf("-%06d", int64(-y))
	default:
		year = fmt.Sprintf("+%06d", int64(y))
	}
	return fmt.Sprintf("%s-%02d-%02dT%02d:%02d:%02d.%03dZ", year, int(monthFromTime(t))+1, int(dateFromTime(t)),
		int(hourFromTime(t)), int(minFromTime(t)), int(secFromTime(t)), int(msFromTime(t)))
}

// toLocaleDate and toLocaleTime format a local time value the way en-US
// does.
func toLocaleDate(lt float64) string {
	return fmt.Sprintf("%d/%d/%s", int(monthFromTime(lt))+1, int(dateFromTime(lt)), strconv.FormatInt(int64(yearFromTime(lt)), 10))
}

func toLocaleTime(lt float64) string {
	h := int(hourFromTime(lt))
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	if h%12 == 0 {
		h = 12
	} else {
		h %= 12
	}
	return fmt.Sprintf("%d:%02d:%02d %s", h, int(minFromTime(lt)), int(secFromTime(lt)), suffix)
}

// parseDate implements Date.parse: the ISO format first, then the
// formats produced by toString and toUTCString.
func parseDate(s string) float64 {
	s = strings.TrimSpace(s)
	if t, ok := parseISODate(s); ok {
		return timeClip(t)
	}
	return parseFallbackDate(s)
}

// isoScanner reads fixed-width digit fields.
type isoScanner struct {
	s   string
	pos int
}

func (sc *isoScanner) digits(n int) (float64, bool) {
	if sc.pos+n > len(sc.s) {
		return 0, false
	}
	v := 0
	for i := 0; i < n; i++ {
		c := sc.s[sc.pos+i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	sc.pos += n
	return float64(v), true
}

func (sc *isoScanner) accept(c byte) bool {
	if sc.pos < len(sc.s) && sc.s[sc.pos] == c {
		sc.pos++
		return true
	}
	return false
}

func (sc *isoScanner) done() bool { return sc.pos == len(sc.s) }

func parseISODate(s string) (float64, bool) {
	sc := &isoScanner{s: s}
	var year float64
	var ok bool
	switch {
	case sc.accept('+'):
		year, ok = sc.digits(6)
	case sc.accept('-'):
		year, ok = sc.digits(6)
		if ok && year == 0 {
			return 0, false
		}
		year = -year
	default:
		year, ok = sc.digits(4)
	}
	if !ok {
		return 0, false
	}
	month, date := 1.0, 1.0
	if sc.accept('-') {
		if month, ok = sc.digits(2); !ok || month < 1 || month > 12 {
			return 0, false
		}
		if sc.accept('-') {
			if date, ok = sc.digits(2); !ok || date < 1 || date > 31 {
				return 0, false
			}
		}
	}
	var hour, min, sec, ms float64
	dateOnly := true
	if sc.accept('T') {
		dateOnly = false
		if hour, ok = sc.digits(2); !ok {
			return 0, false
		}
		if !sc.accept(':') {
			return 0, false
		}
		if min, ok = sc.digits(2); !ok {
			return 0, false
		}
		if sc.accept(':') {
			if sec, ok = sc.digits(2); !ok {
				return 0, false
			}
			if sc.accept('.') {
				start := sc.pos
				for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
					sc.pos++
				}
				frac := sc.s[start:sc.pos]
				if frac == "" {
					return 0, false
				}
				frac = (frac + "00")[:3]
				n, _ := strconv.Atoi(frac)
				ms = float64(n)
			}
		}
		if hour > 24 || min > 59 || sec > 59 || hour == 24 && (min > 0 || sec > 0 || ms > 0) {
			return 0, false
		}
	}
	offset, utc := 0.0, dateOnly
	switch {
	case sc.accept('Z'):
		utc = true
	case !dateOnly && (sc.pos < len(sc.s) && (sc.s[sc.pos] == '+' || sc.s[sc.pos] == '-')):
		sign := 1.0
		if sc.s[sc.pos] == '-' {
			sign = -1
		}
		sc.pos++
		oh, ok1 := sc.digits(2)
		ok2 := sc.accept(':')
		om, ok3 := sc.digits(2)
		if !ok1 || !ok2 || !ok3 || oh > 23 || om > 59 {
			return 0, false
		}
		offset, utc = sign*(oh*msPerHour+om*msPerMinute), true
	}
	if !sc.done() {
		return 0, false
	}
	// day 0 of the following month is the last day of this one
	if date > 28 && date > dateFromTime(makeDate(makeDay(year, month, 0), 0)) {
		return 0, false
	}
	t := makeDate(makeDay(year, month-1, date), makeTime(hour, min, sec, ms))
	if utc {
		return t - offset, true
	}
	return utcTime(t), true
}

var fallbackLayouts = []string{
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon, 02 Jan 2006 15:04:05 GMT",
	"Mon Jan 02 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"Mon Jan 02 2006 15:04:05",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006",
}

func parseFallbackDate(s string) float64 {
	if i := strings.IndexByte(s, '('); i > 0 && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range fallbackLayouts {
		zoned := strings.Contains(layout, "GMT") || strings.Contains(layout, "-0700")
		loc := time.Local
		if zoned {
			loc = time.UTC
		}
		tm, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		return timeClip(float64(tm.UnixMilli()))
	}
	return math.NaN()
}
