package wire

import (
	"time"
)

const (
	// TicksPerSecond is the resolution of TIME values.
	TicksPerSecond = 10000
	TicksPerDay    = 24 * 60 * 60 * TicksPerSecond
	TickDuration   = time.Second / TicksPerSecond

	// unixEpochDay is 1970-01-01 counted from the engine epoch, 1858-11-17.
	unixEpochDay  = 40587
	secondsPerDay = 24 * 60 * 60
)

// Date counts days since 1858-11-17.
type Date int32

// Time counts ticks of 1/10000 s since midnight.
type Time uint32

type Timestamp struct {
	Date Date
	Time Time
}

// TimeTz holds a UTC time of day and the zone it was expressed in.
type TimeTz struct {
	Time Time
	Zone uint16
}

// TimestampTz holds a UTC timestamp and the zone it was expressed in.
type TimestampTz struct {
	Timestamp Timestamp
	Zone      uint16
}

// TimeTzEx and TimestampTzEx also carry the zone's offset in minutes at that instant.
type TimeTzEx struct {
	TimeTz
	ExtOffset int16
}

type TimestampTzEx struct {
	TimestampTz
	ExtOffset int16
}

func DateFromCivil(year int, month time.Month, day int) Date {
	unix := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
	return Date(floorDiv(unix, secondsPerDay) + unixEpochDay)
}

func (me Date) Civil() (year int, month time.Month, day int) {
	return time.Unix((int64(me)-unixEpochDay)*secondsPerDay, 0).UTC().Date()
}

// TimeFromDuration converts a duration since midnight, truncating to ticks.
func TimeFromDuration(d time.Duration) Time {
	return Time(d / TickDuration)
}

func (me Time) Duration() time.Duration {
	return time.Duration(me) * TickDuration
}

// TimestampFromTime takes the wall clock of t in its own location.
func TimestampFromTime(t time.Time) Timestamp {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return Timestamp{
		Date: DateFromCivil(y, m, d),
		Time: TimeFromDuration(t.Sub(midnight)),
	}
}

// In returns the timestamp as a wall clock in loc.
func (me Timestamp) In(loc *time.Location) time.Time {
	y, m, d := me.Date.Civil()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(me.Time.Duration())
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func GetDate(b []byte) Date    { return Date(GetInt32(b)) }
func PutDate(b []byte, v Date) { PutInt32(b, int32(v)) }
func GetTime(b []byte) Time    { return Time(GetUint32(b)) }
func PutTime(b []byte, v Time) { PutUint32(b, uint32(v)) }

func GetTimestamp(b []byte) Timestamp {
	return Timestamp{Date: GetDate(b), Time: GetTime(b[4:])}
}

func PutTimestamp(b []byte, v Timestamp) {
	PutDate(b, v.Date)
	PutTime(b[4:], v.Time)
}

func GetTimeTz(b []byte) TimeTz {
	return TimeTz{Time: GetTime(b), Zone: GetUint16(b[4:])}
}

func PutTimeTz(b []byte, v TimeTz) {
	PutTime(b, v.Time)
	PutUint16(b[4:], v.Zone)
	PutUint16(b[6:], 0)
}

func GetTimeTzEx(b []byte) TimeTzEx {
	return TimeTzEx{TimeTz: GetTimeTz(b), ExtOffset: GetInt16(b[6:])}
}

func PutTimeTzEx(b []byte, v TimeTzEx) {
	PutTimeTz(b, v.TimeTz)
	PutInt16(b[6:], v.ExtOffset)
}

func GetTimestampTz(b []byte) TimestampTz {
	return TimestampTz{Timestamp: GetTimestamp(b), Zone: GetUint16(b[8:])}
}

func PutTimestampTz(b []byte, v TimestampTz) {
	PutTimestamp(b, v.Timestamp)
	PutUint16(b[8:], v.Zone)
	PutUint16(b[10:], 0)
}

func GetTimestampTzEx(b []byte) TimestampTzEx {
	return TimestampTzEx{TimestampTz: GetTimestampTz(b), ExtOffset: GetInt16(b[10:])}
}

func PutTimestampTzEx(b []byte, v TimestampTzEx) {
	PutTimestampTz(b, v.TimestampTz)
	PutInt16(b[10:], v.ExtOffset)
}
