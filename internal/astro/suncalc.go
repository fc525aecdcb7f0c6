// Package astro derives the day's sunrise and sunset from the latest
// locked fix. The astronomical formulae live in the go-sunrise library;
// this package only gates validity and answers schedule queries.
package astro

import (
	"time"

	"github.com/dumacp/go-coop/internal/gps"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/nathan-osman/go-sunrise"
)

const (
	TagSunValid = "sunValid"
	TagClock    = "clock"
	TagSunrise  = "sunrise"
	TagSunset   = "sunset"
	TagDaytime  = "daytime"
)

// SunCalc holds the current solar schedule. Valid is false until a
// locked fix arrives and whenever the sun does not both rise and set at
// the fix location (polar day or night).
type SunCalc struct {
	valid   bool
	current time.Time
	rise    time.Time
	set     time.Time
}

func NewSunCalc() *SunCalc {
	return &SunCalc{}
}

// ProcessFixData recomputes sunrise and sunset for the fix position and
// date. It returns true iff the time computation is currently valid.
func (s *SunCalc) ProcessFixData(fix gps.Fix) bool {
	if !fix.Locked {
		s.valid = false
		return false
	}
	rise, set := sunrise.SunriseSunset(fix.Lat, fix.Lon,
		fix.Time.Year(), fix.Time.Month(), fix.Time.Day())
	if rise.IsZero() || set.IsZero() {
		logs.LogWarn.Printf("no sunrise/sunset at %.4f,%.4f on %s",
			fix.Lat, fix.Lon, fix.Time.Format("2006-01-02"))
		s.valid = false
		return false
	}
	s.rise = rise
	s.set = set
	s.current = fix.Time
	s.valid = true
	return true
}

// Valid reports whether the schedule below can be trusted.
func (s *SunCalc) Valid() bool { return s.valid }

// Current returns the UTC time of the fix the schedule was computed
// from.
func (s *SunCalc) Current() time.Time { return s.current }

func (s *SunCalc) Sunrise() time.Time { return s.rise }

func (s *SunCalc) Sunset() time.Time { return s.set }

// Daytime reports whether the current time falls between sunrise and
// sunset.
func (s *SunCalc) Daytime() bool {
	return s.valid && TimeIsBetween(s.current, s.rise, s.set)
}

// TimeIsBetween reports whether t lies in [first, second).
func TimeIsBetween(t, first, second time.Time) bool {
	return !t.Before(first) && t.Before(second)
}

// SendTelemetry emits the solar schedule as one transmission.
func (s *SunCalc) SendTelemetry(f *telemetry.Framer) {
	f.TransmissionStart()
	f.SendTerm(TagSunValid, s.valid)
	if s.valid {
		f.SendTerm(TagClock, s.current.Format("15:04:05"))
		f.SendTerm(TagSunrise, s.rise.Format("15:04"))
		f.SendTerm(TagSunset, s.set.Format("15:04"))
		f.SendTerm(TagDaytime, s.Daytime())
	}
	f.TransmissionEnd()
}
