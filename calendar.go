package sqlmsg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/sqlmsg/wire"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (me Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", me.Year, int(me.Month), me.Day)
}

// Time is a time of day, the duration since midnight.
type Time time.Duration

func (me Time) String() string {
	return formatTime(time.Duration(me))
}

type Timestamp struct {
	Date Date
	Time Time
}

func (me Timestamp) String() string {
	return me.Date.String() + " " + me.Time.String()
}

// TimestampOf takes the wall clock of t in its own location.
func TimestampOf(t time.Time) Timestamp {
	return opaqueToTimestamp(wire.TimestampFromTime(t))
}

// In returns the wall clock as an instant in loc.
func (me Timestamp) In(loc *time.Location) time.Time {
	return time.Date(me.Date.Year, me.Date.Month, me.Date.Day, 0, 0, 0, 0, loc).Add(time.Duration(me.Time))
}

// TimeTz is a UTC time of day with the zone it was expressed in.
type TimeTz struct {
	UTCTime Time
	Zone    string
}

func (me TimeTz) String() string {
	o, err := timeTzToOpaque(me)
	if err != nil {
		return me.UTCTime.String() + " " + me.Zone
	}
	s, err := formatOpaqueTimeTz(o)
	if err != nil {
		return me.UTCTime.String() + " " + me.Zone
	}
	return s
}

// TimestampTz is a UTC timestamp with the zone it was expressed in.
type TimestampTz struct {
	UTCTimestamp Timestamp
	Zone         string
}

// TimestampTzOf keeps the instant t and names its zone: the location name when the engine
// knows it, the current offset otherwise.
func TimestampTzOf(t time.Time) TimestampTz {
	zone := t.Location().String()
	if _, err := wire.ZoneID(zone); err != nil {
		_, offset := t.Zone()
		zone = offsetZoneName(offset)
	}
	return TimestampTz{
		UTCTimestamp: TimestampOf(t.UTC()),
		Zone:         zone,
	}
}

// Time returns the instant in the value's zone.
func (me TimestampTz) Time() (ret time.Time, err error) {
	id, err := wire.ZoneID(me.Zone)
	if err != nil {
		err = conversionErrorf("%v", err)
		return
	}
	loc, err := wire.ZoneLocation(id)
	if err != nil {
		err = conversionErrorf("%v", err)
		return
	}
	ret = me.UTCTimestamp.In(time.UTC).In(loc)
	return
}

func (me TimestampTz) String() string {
	t, err := me.Time()
	if err != nil {
		return me.UTCTimestamp.String() + " " + me.Zone
	}
	return TimestampOf(t).String() + " " + me.Zone
}

func offsetZoneName(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, seconds/60%60)
}

// TIME WITH TIME ZONE offsets are resolved on this date.
var timeTzReferenceDate = Date{2020, time.January, 1}

func dateToOpaque(d Date) (ret wire.Date, err error) {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	if d.Year < 1 || d.Year > 9999 || t.Month() != d.Month || t.Day() != d.Day {
		err = conversionErrorf("invalid date %v", d)
		return
	}
	ret = wire.DateFromCivil(d.Year, d.Month, d.Day)
	return
}

func opaqueToDate(d wire.Date) Date {
	y, m, day := d.Civil()
	return Date{y, m, day}
}

func timeToOpaque(t Time) (ret wire.Time, err error) {
	if t < 0 || time.Duration(t) >= 24*time.Hour {
		err = conversionErrorf("invalid time of day %v", time.Duration(t))
		return
	}
	ret = wire.TimeFromDuration(time.Duration(t))
	return
}

func opaqueToTime(t wire.Time) Time {
	return Time(t.Duration())
}

func timestampToOpaque(ts Timestamp) (ret wire.Timestamp, err error) {
	if ret.Date, err = dateToOpaque(ts.Date); err != nil {
		return
	}
	ret.Time, err = timeToOpaque(ts.Time)
	return
}

func opaqueToTimestamp(ts wire.Timestamp) Timestamp {
	return Timestamp{opaqueToDate(ts.Date), opaqueToTime(ts.Time)}
}

func zoneID(name string) (ret uint16, err error) {
	ret, err = wire.ZoneID(name)
	if err != nil {
		err = conversionErrorf("%v", err)
	}
	return
}

func zoneName(id uint16) (ret string, err error) {
	ret, err = wire.ZoneName(id)
	if err != nil {
		err = conversionErrorf("%v", err)
	}
	return
}

func zoneLocation(id uint16) (ret *time.Location, err error) {
	ret, err = wire.ZoneLocation(id)
	if err != nil {
		err = conversionErrorf("%v", err)
	}
	return
}

func timeTzToOpaque(t TimeTz) (ret wire.TimeTz, err error) {
	if ret.Time, err = timeToOpaque(t.UTCTime); err != nil {
		return
	}
	ret.Zone, err = zoneID(t.Zone)
	return
}

func opaqueToTimeTz(t wire.TimeTz) (ret TimeTz, err error) {
	ret.UTCTime = opaqueToTime(t.Time)
	ret.Zone, err = zoneName(t.Zone)
	return
}

func timestampTzToOpaque(ts TimestampTz) (ret wire.TimestampTz, err error) {
	if ret.Timestamp, err = timestampToOpaque(ts.UTCTimestamp); err != nil {
		return
	}
	ret.Zone, err = zoneID(ts.Zone)
	return
}

func opaqueToTimestampTz(ts wire.TimestampTz) (ret TimestampTz, err error) {
	ret.UTCTimestamp = opaqueToTimestamp(ts.Timestamp)
	ret.Zone, err = zoneName(ts.Zone)
	return
}

func formatTime(d time.Duration) string {
	ticks := int64(d / wire.TickDuration)
	secs := ticks / wire.TicksPerSecond
	return fmt.Sprintf("%02d:%02d:%02d.%04d", secs/3600, secs/60%60, secs%60, ticks%wire.TicksPerSecond)
}

func formatOpaqueDate(d wire.Date) string {
	return opaqueToDate(d).String()
}

func formatOpaqueTime(t wire.Time) string {
	return formatTime(t.Duration())
}

func formatOpaqueTimestamp(ts wire.Timestamp) string {
	return formatOpaqueDate(ts.Date) + " " + formatOpaqueTime(ts.Time)
}

// formatOpaqueTimeTz renders the wall clock in the value's zone.
func formatOpaqueTimeTz(t wire.TimeTz) (ret string, err error) {
	loc, err := zoneLocation(t.Zone)
	if err != nil {
		return
	}
	name, err := zoneName(t.Zone)
	if err != nil {
		return
	}
	ref := Timestamp{timeTzReferenceDate, opaqueToTime(t.Time)}
	local := wire.TimestampFromTime(ref.In(time.UTC).In(loc))
	ret = formatOpaqueTime(local.Time) + " " + name
	return
}

func formatOpaqueTimestampTz(ts wire.TimestampTz) (ret string, err error) {
	loc, err := zoneLocation(ts.Zone)
	if err != nil {
		return
	}
	name, err := zoneName(ts.Zone)
	if err != nil {
		return
	}
	local := wire.TimestampFromTime(opaqueToTimestamp(ts.Timestamp).In(time.UTC).In(loc))
	ret = formatOpaqueTimestamp(local) + " " + name
	return
}

func parseDate(s string) (ret wire.Date, err error) {
	t, err := time.Parse("2006-1-2", strings.TrimSpace(s))
	if err != nil {
		err = conversionErrorf("invalid date %q", s)
		return
	}
	ret = wire.DateFromCivil(t.Date())
	return
}

// parseTime accepts HH:MM, HH:MM:SS and HH:MM:SS.f with up to four fraction digits.
func parseTime(s string) (ret wire.Time, err error) {
	bad := func() error { return conversionErrorf("invalid time %q", s) }
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		err = bad()
		return
	}
	var frac string
	if len(parts) == 3 {
		if dot := strings.IndexByte(parts[2], '.'); dot >= 0 {
			frac = parts[2][dot+1:]
			parts[2] = parts[2][:dot]
			if len(frac) == 0 || len(frac) > 4 {
				err = bad()
				return
			}
		}
	} else {
		parts = append(parts, "0")
	}
	var hms [3]int
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			err = bad()
			return
		}
		if hms[i], err = strconv.Atoi(p); err != nil || hms[i] < 0 {
			err = bad()
			return
		}
	}
	if hms[0] > 23 || hms[1] > 59 || hms[2] > 59 {
		err = bad()
		return
	}
	ticks := 0
	if frac != "" {
		if ticks, err = strconv.Atoi(frac); err != nil || ticks < 0 {
			err = bad()
			return
		}
		for i := len(frac); i < 4; i++ {
			ticks *= 10
		}
	}
	ret = wire.Time(((hms[0]*60+hms[1])*60+hms[2])*wire.TicksPerSecond + ticks)
	return
}

func parseTimestamp(s string) (ret wire.Timestamp, err error) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " T")
	if i < 0 {
		ret.Date, err = parseDate(s)
		return
	}
	if ret.Date, err = parseDate(s[:i]); err != nil {
		return
	}
	ret.Time, err = parseTime(s[i+1:])
	return
}

// splitZone separates the trailing zone name from a time or timestamp.
func splitZone(s string) (value, zone string, err error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		err = conversionErrorf("missing time zone in %q", s)
		return
	}
	return s[:i], s[i+1:], nil
}

func parseTimeTz(s string) (ret wire.TimeTz, err error) {
	value, zone, err := splitZone(s)
	if err != nil {
		return
	}
	local, err := parseTime(value)
	if err != nil {
		return
	}
	if ret.Zone, err = zoneID(zone); err != nil {
		return
	}
	loc, err := zoneLocation(ret.Zone)
	if err != nil {
		return
	}
	ref := Timestamp{timeTzReferenceDate, opaqueToTime(local)}
	ret.Time = wire.TimestampFromTime(ref.In(loc).UTC()).Time
	return
}

func parseTimestampTz(s string) (ret wire.TimestampTz, err error) {
	value, zone, err := splitZone(s)
	if err != nil {
		return
	}
	local, err := parseTimestamp(value)
	if err != nil {
		return
	}
	if ret.Zone, err = zoneID(zone); err != nil {
		return
	}
	loc, err := zoneLocation(ret.Zone)
	if err != nil {
		return
	}
	ret.Timestamp = wire.TimestampFromTime(opaqueToTimestamp(local).In(loc).UTC())
	return
}
