// Package door schedules and drives the enclosure door actuator. The
// motor runs between two limit switches; a travel timeout marks the
// door as not responding and leaves the state machine in sUnknown until
// a later move completes.
package door

import (
	"time"

	"github.com/dumacp/go-coop/internal/astro"
	"github.com/dumacp/go-coop/internal/scheduler"
	"github.com/dumacp/go-coop/internal/settings"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

// SwitchState is the combined reading of both limit switches.
type SwitchState int

const (
	SwitchUnknown SwitchState = iota
	SwitchOpen
	SwitchClosed
)

// Actuator is the door hardware: a reversible motor and two limit
// switches. Present is false when the hardware could not be probed.
type Actuator interface {
	Present() bool
	Raise()
	Lower()
	Stop()
	Switches() SwitchState
}

// Mode selects between the solar schedule and a forced position.
type Mode uint8

const (
	ModeAuto Mode = iota
	ModeForcedOpen
	ModeForcedClosed
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeForcedOpen:
		return "forcedOpen"
	case ModeForcedClosed:
		return "forcedClosed"
	}
	return "invalid"
}

// Compiled-in defaults: open at sunrise, close 45 minutes after sunset
// so the flock is inside before full dark.
const (
	defaultMode         = ModeAuto
	defaultBeepOnChange = true
	defaultOpenOffset   = 0.0
	defaultCloseOffset  = 0.75
)

// travelTimeout bounds one full door travel.
const travelTimeout = 45 * time.Second

const (
	changeBeepFreq  = 880
	changeBeepOnMs  = 50
	changeBeepOffMs = 50
)

const (
	TagDoorState = "doorState"
	TagDoorMode  = "doorMode"
	TagDoorOpen  = "doorOpen"
	TagDoorClose = "doorClose"
)

// Door is the door controller.
type Door struct {
	fsm     *fsm.FSM
	act     Actuator
	sun     *astro.SunCalc
	errs    *scheduler.Register
	alerter scheduler.Alerter
	clock   func() time.Time

	moveStart time.Time

	mode         Mode
	beepOnChange bool
	openOffset   float64 // hours relative to sunrise
	closeOffset  float64 // hours relative to sunset
}

func New(act Actuator, sun *astro.SunCalc, errs *scheduler.Register, alerter scheduler.Alerter) *Door {
	return &Door{
		fsm:          initFSM(),
		act:          act,
		sun:          sun,
		errs:         errs,
		alerter:      alerter,
		clock:        time.Now,
		mode:         defaultMode,
		beepOnChange: defaultBeepOnChange,
		openOffset:   defaultOpenOffset,
		closeOffset:  defaultCloseOffset,
	}
}

// SetClock replaces the time source for tests.
func (d *Door) SetClock(clock func() time.Time) {
	d.clock = clock
}

// Setup reads the limit switches once to seed the state machine.
func (d *Door) Setup() {
	d.act.Stop()
	if !d.act.Present() {
		d.errs.Report(scheduler.ErrorDoorNotPresent, true)
		return
	}
	d.errs.Report(scheduler.ErrorDoorNotPresent, false)
	switch d.act.Switches() {
	case SwitchOpen:
		d.fsm.SetState(sOpen)
	case SwitchClosed:
		d.fsm.SetState(sClosed)
	default:
		d.errs.Report(scheduler.ErrorDoorUnknownState, true)
	}
}

// Tick advances a move in progress: it stops the motor when a limit
// switch reports arrival and flags the door when the travel timeout
// passes first.
func (d *Door) Tick() {
	if !d.act.Present() {
		return
	}
	switch d.fsm.Current() {
	case sOpening:
		d.progress(SwitchOpen, openedEvent)
	case sClosing:
		d.progress(SwitchClosed, closedEvent)
	}
}

func (d *Door) progress(target SwitchState, arrived string) {
	if d.act.Switches() == target {
		d.act.Stop()
		d.fsm.Event(arrived)
		d.errs.Report(scheduler.ErrorDoorNotResponding, false)
		d.errs.Report(scheduler.ErrorDoorUnknownState, false)
		logs.LogInfo.Printf("door %s", d.fsm.Current())
		if d.beepOnChange && d.alerter != nil {
			d.alerter.Beep(changeBeepFreq, changeBeepOnMs, changeBeepOffMs, 1)
		}
		return
	}
	if d.clock().Sub(d.moveStart) > travelTimeout {
		d.act.Stop()
		d.fsm.Event(stuckEvent)
		d.errs.Report(scheduler.ErrorDoorNotResponding, true)
		d.errs.Report(scheduler.ErrorDoorUnknownState, true)
	}
}

// CheckTime re-evaluates the schedule against the solar clock and
// commands a move when the wanted position differs from the current
// one.
func (d *Door) CheckTime() {
	want := false
	switch d.mode {
	case ModeForcedOpen:
		want = true
	case ModeForcedClosed:
		want = false
	default:
		if !d.sun.Valid() {
			return
		}
		openAt := d.sun.Sunrise().Add(hours(d.openOffset))
		closeAt := d.sun.Sunset().Add(hours(d.closeOffset))
		want = astro.TimeIsBetween(d.sun.Current(), openAt, closeAt)
	}
	d.command(want)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func (d *Door) command(open bool) {
	if !d.act.Present() {
		return
	}
	current := d.fsm.Current()
	if open {
		if current == sOpen || current == sOpening {
			return
		}
		if err := d.fsm.Event(openEvent); err != nil {
			return
		}
		d.moveStart = d.clock()
		d.act.Raise()
		return
	}
	if current == sClosed || current == sClosing {
		return
	}
	if err := d.fsm.Event(closeEvent); err != nil {
		return
	}
	d.moveStart = d.clock()
	d.act.Lower()
}

// State returns the state machine's current state name.
func (d *Door) State() string {
	return d.fsm.Current()
}

// Mode returns the current schedule mode.
func (d *Door) Mode() Mode {
	return d.mode
}

// SetMode switches between the solar schedule and a forced position,
// taking effect on the next CheckTime.
func (d *Door) SetMode(m Mode) {
	if m > ModeForcedClosed {
		return
	}
	d.mode = m
}

// SetOpenOffset moves the opening time, in hours relative to sunrise.
func (d *Door) SetOpenOffset(h float64) {
	d.openOffset = h
}

// SetCloseOffset moves the closing time, in hours relative to sunset.
func (d *Door) SetCloseOffset(h float64) {
	d.closeOffset = h
}

// SendTelemetry emits the door status as one transmission.
func (d *Door) SendTelemetry(f *telemetry.Framer) {
	f.TransmissionStart()
	f.SendTerm(TagDoorState, d.fsm.Current())
	f.SendTerm(TagDoorMode, d.mode.String())
	if d.sun.Valid() {
		f.SendTerm(TagDoorOpen, d.sun.Sunrise().Add(hours(d.openOffset)).Format("15:04"))
		f.SendTerm(TagDoorClose, d.sun.Sunset().Add(hours(d.closeOffset)).Format("15:04"))
	}
	f.TransmissionEnd()
}

// SaveSettings serializes the door region at the store cursor. With
// defaults true the compiled-in defaults are written instead of the
// live values.
func (d *Door) SaveSettings(st *settings.Store, defaults bool) {
	if defaults {
		st.PutUint8(uint8(defaultMode))
		st.PutBool(defaultBeepOnChange)
		st.PutFloat64(defaultOpenOffset)
		st.PutFloat64(defaultCloseOffset)
		return
	}
	st.PutUint8(uint8(d.mode))
	st.PutBool(d.beepOnChange)
	st.PutFloat64(d.openOffset)
	st.PutFloat64(d.closeOffset)
}

// LoadSettings deserializes the door region in the exact order
// SaveSettings wrote it.
func (d *Door) LoadSettings(st *settings.Store) error {
	mode, err := st.Uint8()
	if err != nil {
		return err
	}
	beep, err := st.Bool()
	if err != nil {
		return err
	}
	open, err := st.Float64()
	if err != nil {
		return err
	}
	cls, err := st.Float64()
	if err != nil {
		return err
	}
	d.mode = Mode(mode)
	d.beepOnChange = beep
	d.openOffset = open
	d.closeOffset = cls
	return nil
}
