package wire

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
)

const (
	// Offset zones are encoded as offsetZoneBias plus the offset in minutes.
	offsetZoneBias = 1439
	maxOffsetZone  = 2 * offsetZoneBias

	UTCZone uint16 = 65535
)

// Named zones count down from 65535 in this order.
var zoneNames = []string{
	"UTC",
	"GMT",
	"Africa/Cairo",
	"Africa/Johannesburg",
	"Africa/Lagos",
	"America/Argentina/Buenos_Aires",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"America/Mexico_City",
	"America/New_York",
	"America/Sao_Paulo",
	"America/Toronto",
	"Asia/Dubai",
	"Asia/Hong_Kong",
	"Asia/Kolkata",
	"Asia/Shanghai",
	"Asia/Singapore",
	"Asia/Tokyo",
	"Australia/Sydney",
	"Europe/Berlin",
	"Europe/Lisbon",
	"Europe/London",
	"Europe/Madrid",
	"Europe/Moscow",
	"Europe/Paris",
	"Europe/Rome",
	"Pacific/Auckland",
}

var zoneIds = func() map[string]uint16 {
	ret := make(map[string]uint16, len(zoneNames))
	for i, name := range zoneNames {
		ret[strings.ToUpper(name)] = UTCZone - uint16(i)
	}
	return ret
}()

// ZoneID resolves a zone name ("UTC", "America/Sao_Paulo") or a "+hh:mm"/"-hh:mm" offset.
func ZoneID(name string) (ret uint16, err error) {
	if name == "" {
		err = errors.New("empty time zone")
		return
	}
	if name[0] == '+' || name[0] == '-' {
		var h, m int
		_, err = fmt.Sscanf(name[1:], "%d:%d", &h, &m)
		if err != nil || h > 23 || m > 59 || m < 0 || h < 0 {
			err = errors.Newf("invalid time zone offset %q", name)
			return
		}
		minutes := h*60 + m
		if name[0] == '-' {
			minutes = -minutes
		}
		ret = uint16(offsetZoneBias + minutes)
		return
	}
	ret, ok := zoneIds[strings.ToUpper(name)]
	if !ok {
		err = errors.Newf("unknown time zone %q", name)
	}
	return
}

func isOffsetZone(id uint16) bool {
	return id <= maxOffsetZone
}

// ZoneName is the inverse of ZoneID.
func ZoneName(id uint16) (ret string, err error) {
	if isOffsetZone(id) {
		minutes := int(id) - offsetZoneBias
		sign := '+'
		if minutes < 0 {
			sign = '-'
			minutes = -minutes
		}
		ret = fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
		return
	}
	i := int(UTCZone - id)
	if i >= len(zoneNames) {
		err = errors.Newf("unknown time zone id %d", id)
		return
	}
	ret = zoneNames[i]
	return
}

// ZoneLocation returns a location that yields the zone's offset for any instant.
func ZoneLocation(id uint16) (loc *time.Location, err error) {
	name, err := ZoneName(id)
	if err != nil {
		return
	}
	if isOffsetZone(id) {
		loc = time.FixedZone(name, (int(id)-offsetZoneBias)*60)
		return
	}
	loc, err = time.LoadLocation(name)
	if err != nil {
		err = errors.Wrapf(err, "loading time zone %q", name)
	}
	return
}
