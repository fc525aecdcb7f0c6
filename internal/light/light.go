// Package light drives the supplemental lighting relay. The lamp runs
// in a window before sunrise and another after sunset; when the natural
// day is shorter than the configured minimum day length both windows
// widen evenly to make up the deficit.
package light

import (
	"time"

	"github.com/dumacp/go-coop/internal/astro"
	"github.com/dumacp/go-coop/internal/settings"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

// Relay is the lamp output.
type Relay interface {
	On()
	Off()
	IsOn() bool
}

// Compiled-in defaults: half an hour of light on both shoulders and a
// fourteen hour minimum day, the usual laying-hen target.
const (
	defaultMorning      = 0.5
	defaultEvening      = 0.5
	defaultMinDayLength = 14.0
)

const (
	TagLight        = "light"
	TagLightMorning = "lightMorning"
	TagLightEvening = "lightEvening"
	TagLightDayLen  = "lightDayLen"
)

// Light is the supplemental lighting controller.
type Light struct {
	relay Relay
	sun   *astro.SunCalc

	morning      float64 // hours before sunrise
	evening      float64 // hours after sunset
	minDayLength float64 // hours of light per day
	want         bool
}

func New(relay Relay, sun *astro.SunCalc) *Light {
	return &Light{
		relay:        relay,
		sun:          sun,
		morning:      defaultMorning,
		evening:      defaultEvening,
		minDayLength: defaultMinDayLength,
	}
}

// Setup forces the relay into a known state.
func (l *Light) Setup() {
	l.relay.Off()
	l.want = false
}

// Tick settles the relay onto the wanted state. Switching here keeps
// CheckTime free of hardware access.
func (l *Light) Tick() {
	if l.want == l.relay.IsOn() {
		return
	}
	if l.want {
		l.relay.On()
		logs.LogInfo.Printf("light on")
		return
	}
	l.relay.Off()
	logs.LogInfo.Printf("light off")
}

// CheckTime re-evaluates the lighting windows against the solar clock.
func (l *Light) CheckTime() {
	if !l.sun.Valid() {
		return
	}
	now := l.sun.Current()
	rise := l.sun.Sunrise()
	set := l.sun.Sunset()

	morning := l.morning
	evening := l.evening
	if deficit := l.minDayLength - set.Sub(rise).Hours() - morning - evening; deficit > 0 {
		morning += deficit / 2
		evening += deficit / 2
	}

	inMorning := astro.TimeIsBetween(now, rise.Add(-hours(morning)), rise)
	inEvening := astro.TimeIsBetween(now, set, set.Add(hours(evening)))
	l.want = inMorning || inEvening
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Want reports the state CheckTime last decided on.
func (l *Light) Want() bool {
	return l.want
}

// SetMorning sets the window before sunrise, in hours.
func (l *Light) SetMorning(h float64) {
	if h >= 0 {
		l.morning = h
	}
}

// SetEvening sets the window after sunset, in hours.
func (l *Light) SetEvening(h float64) {
	if h >= 0 {
		l.evening = h
	}
}

// SetMinDayLength sets the minimum hours of light per day.
func (l *Light) SetMinDayLength(h float64) {
	if h >= 0 {
		l.minDayLength = h
	}
}

// SendTelemetry emits the lighting status as one transmission.
func (l *Light) SendTelemetry(f *telemetry.Framer) {
	f.TransmissionStart()
	f.SendTerm(TagLight, l.relay.IsOn())
	f.SendTerm(TagLightMorning, l.morning)
	f.SendTerm(TagLightEvening, l.evening)
	f.SendTerm(TagLightDayLen, l.minDayLength)
	f.TransmissionEnd()
}

// SaveSettings serializes the light region at the store cursor.
func (l *Light) SaveSettings(st *settings.Store, defaults bool) {
	if defaults {
		st.PutFloat64(defaultMorning)
		st.PutFloat64(defaultEvening)
		st.PutFloat64(defaultMinDayLength)
		return
	}
	st.PutFloat64(l.morning)
	st.PutFloat64(l.evening)
	st.PutFloat64(l.minDayLength)
}

// LoadSettings deserializes the light region in the exact order
// SaveSettings wrote it.
func (l *Light) LoadSettings(st *settings.Store) error {
	morning, err := st.Float64()
	if err != nil {
		return err
	}
	evening, err := st.Float64()
	if err != nil {
		return err
	}
	minDay, err := st.Float64()
	if err != nil {
		return err
	}
	l.morning = morning
	l.evening = evening
	l.minDayLength = minDay
	return nil
}
