// Package scheduler holds the cooperative control loop of the enclosure
// controller and the infrastructure it schedules with: polled timers
// and the sticky error-flag register. One iteration drains buffered
// receiver input, ticks every stateful collaborator once and fires at
// most two periodic tasks; nothing in an iteration may block.
package scheduler

import (
	"time"

	"github.com/dumacp/go-coop/internal/gps"
	"github.com/dumacp/go-coop/internal/settings"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/golang/geo/s2"
)

const (
	// TelemetryPeriod is the fixed broadcast interval.
	TelemetryPeriod = 2000 * time.Millisecond
	// TimeCheckPeriodFast probes the receiver aggressively while no
	// time lock exists.
	TimeCheckPeriodFast = 5000 * time.Millisecond
	// TimeCheckPeriodSlow relaxes the load once locked; sunrise and
	// sunset change negligibly within a minute.
	TimeCheckPeriodSlow = 60000 * time.Millisecond
)

// inputChunk bounds how many buffered receiver bytes one iteration
// consumes; any remainder is consumed on later iterations.
const inputChunk = 64

const earthRadiusM = 6371000.0

// InputSource hands over presently buffered receiver bytes without
// blocking.
type InputSource interface {
	Drain(p []byte) int
}

// PositionSource consumes raw receiver bytes and exposes the fix.
type PositionSource interface {
	Parse(data []byte)
	Fix() gps.Fix
	BadFrames() int
	ResetBadFrames()
	Clear()
}

// Astronomer turns a fix into day/night scheduling data. ProcessFixData
// returns true only while the time computation is currently valid.
type Astronomer interface {
	ProcessFixData(fix gps.Fix) bool
	SendTelemetry(f *telemetry.Framer)
}

// Controller is a scheduled actuator subsystem (door, light). Tick runs
// every iteration and must time-slice internally; CheckTime runs only
// when the time computation is valid.
type Controller interface {
	Setup()
	Tick()
	CheckTime()
	SendTelemetry(f *telemetry.Framer)
	SaveSettings(st *settings.Store, defaults bool)
	LoadSettings(st *settings.Store) error
}

// Beeper plays audible patterns without blocking.
type Beeper interface {
	Setup()
	Tick()
	Beep(freq, onMs, offMs uint, repeat int)
}

// Transport is the telemetry link.
type Transport interface {
	Open(addr string) error
	Tick()
}

// HeartbeatPin is the status indicator output, the only hardware the
// loop touches directly.
type HeartbeatPin interface {
	Toggle()
}

// Config carries the loop tunables.
type Config struct {
	Broker string
	// Site is the installed coordinate of the enclosure. A locked fix
	// farther than MaxSiteDistance meters asserts the drift error;
	// zero disables the check.
	SiteLat         float64
	SiteLon         float64
	MaxSiteDistance float64
}

// Collaborators groups everything the loop schedules.
type Collaborators struct {
	Input     InputSource
	Position  PositionSource
	Astro     Astronomer
	Door      Controller
	Light     Controller
	Beeper    Beeper
	Transport Transport
	Telemetry *telemetry.Framer
	Heartbeat HeartbeatPin
	Errors    *Register
	Store     *settings.Store
}

// Loop is the top-level cooperative scheduler. All state lives here and
// is touched only from the owner's single thread.
type Loop struct {
	cfg   Config
	clock func() time.Time

	input     InputSource
	position  PositionSource
	astro     Astronomer
	door      Controller
	light     Controller
	beeper    Beeper
	transport Transport
	telem     *telemetry.Framer
	heartbeat HeartbeatPin
	errors    *Register
	store     *settings.Store

	telemetryTimer *Timer
	timeCheckTimer *Timer
	settingsLoaded bool
	gotInput       bool
	scratch        [inputChunk]byte
}

func NewLoop(cfg Config, c Collaborators) *Loop {
	return &Loop{
		cfg:            cfg,
		clock:          time.Now,
		input:          c.Input,
		position:       c.Position,
		astro:          c.Astro,
		door:           c.Door,
		light:          c.Light,
		beeper:         c.Beeper,
		transport:      c.Transport,
		telem:          c.Telemetry,
		heartbeat:      c.Heartbeat,
		errors:         c.Errors,
		store:          c.Store,
		telemetryTimer: NewTimer(TelemetryPeriod),
		timeCheckTimer: NewTimer(TimeCheckPeriodFast),
	}
}

// SetClock replaces the time source. Tests drive the loop with a
// synthetic clock.
func (l *Loop) SetClock(clock func() time.Time) {
	l.clock = clock
}

// Errors exposes the flag register so collaborators built outside the
// loop can report through the same edge-triggered path.
func (l *Loop) Errors() *Register {
	return l.errors
}

// Setup runs once before the first iteration: opens the telemetry link,
// sets up the actuator subsystems, arms both timers and plays the
// startup confirmation.
func (l *Loop) Setup() {
	if err := l.transport.Open(l.cfg.Broker); err != nil {
		logs.LogWarn.Printf("telemetry link open: %s", err)
	}
	l.beeper.Setup()
	l.door.Setup()
	l.light.Setup()
	now := l.clock()
	l.telemetryTimer.Start(now)
	l.timeCheckTimer.Start(now)
	l.beeper.Beep(1047, 100, 50, 2)
}

// Iterate runs one cooperative pass. The host calls it forever; a
// sub-component failure only degrades functionality, it never stops the
// loop.
func (l *Loop) Iterate() {
	now := l.clock()

	if !l.settingsLoaded {
		l.loadSettings()
		l.settingsLoaded = true
	}

	if n := l.input.Drain(l.scratch[:]); n > 0 {
		l.position.Parse(l.scratch[:n])
		l.gotInput = true
	}

	l.transport.Tick()
	l.telem.Tick()
	l.beeper.Tick()
	l.door.Tick()
	l.light.Tick()

	if l.telemetryTimer.Expired(now) {
		l.telemetryTimer.Start(now)
		l.broadcast()
	}

	if l.timeCheckTimer.Expired(now) {
		l.checkTime(now)
	}
}

func (l *Loop) broadcast() {
	l.heartbeat.Toggle()

	l.telem.TransmissionStart()
	l.telem.SendTerm(telemetry.TagVersion, telemetry.ProtocolVersion)
	l.telem.TransmissionEnd()

	l.telem.TransmissionStart()
	l.telem.SendTerm(telemetry.TagErrors, l.errors.Mask())
	l.telem.TransmissionEnd()

	l.errors.SendTelemetry(l.telem)
	l.astro.SendTelemetry(l.telem)
	l.door.SendTelemetry(l.telem)
	l.light.SendTelemetry(l.telem)
}

func (l *Loop) checkTime(now time.Time) {
	l.errors.Report(ErrorGPSNoData, !l.gotInput)
	if !l.gotInput {
		// A silent receiver cannot refresh the fix; drop it so a
		// stale lock and frozen timestamp are never trusted.
		l.position.Clear()
	}
	l.gotInput = false

	l.errors.Report(ErrorGPSBadData, l.position.BadFrames() > 0)
	l.position.ResetBadFrames()

	fix := l.position.Fix()

	// The re-arm interval follows the lock state observed at this very
	// firing.
	if fix.Locked {
		l.timeCheckTimer.Set(TimeCheckPeriodSlow)
	} else {
		l.timeCheckTimer.Set(TimeCheckPeriodFast)
	}
	l.timeCheckTimer.Start(now)

	l.errors.Report(ErrorGPSNoLock, !fix.Locked)
	l.checkSiteDistance(fix)

	valid := l.astro.ProcessFixData(fix)
	l.errors.Report(ErrorSunCalcInvalid, !valid)
	if valid {
		l.door.CheckTime()
		l.light.CheckTime()
	}
}

// checkSiteDistance flags a locked fix that is implausibly far from the
// installed site coordinate.
func (l *Loop) checkSiteDistance(fix gps.Fix) {
	if !fix.Locked || l.cfg.MaxSiteDistance <= 0 {
		return
	}
	site := s2.LatLngFromDegrees(l.cfg.SiteLat, l.cfg.SiteLon)
	here := s2.LatLngFromDegrees(fix.Lat, fix.Lon)
	meters := site.Distance(here).Radians() * earthRadiusM
	l.errors.Report(ErrorPositionDrift, meters > l.cfg.MaxSiteDistance)
}

// loadSettings runs once, on the first iteration. A missing file, bad
// magic tag or version mismatch rewrites the whole region from
// compiled-in defaults before anything reads it back.
func (l *Loop) loadSettings() {
	err := l.store.Load()
	if err != nil || l.store.StoredVersion() != settings.DataVersion {
		if err != nil {
			logs.LogWarn.Printf("settings load: %s, writing defaults", err)
		} else {
			logs.LogWarn.Printf("settings version %d, want %d, writing defaults",
				l.store.StoredVersion(), settings.DataVersion)
		}
		l.writeSettings(true)
	}
	l.store.Rewind()
	if err := l.door.LoadSettings(l.store); err != nil {
		logs.LogError.Printf("door settings: %s", err)
	}
	if err := l.light.LoadSettings(l.store); err != nil {
		logs.LogError.Printf("light settings: %s", err)
	}
}

// writeSettings serializes every sub-component in the repository-wide
// order, door then light, and flushes the region.
func (l *Loop) writeSettings(defaults bool) {
	l.store.Reset()
	l.door.SaveSettings(l.store, defaults)
	l.light.SaveSettings(l.store, defaults)
	if err := l.store.Flush(); err != nil {
		logs.LogError.Printf("settings flush: %s", err)
	}
}

// SaveSettings persists the live configuration. Command handlers call
// it after a settings mutation.
func (l *Loop) SaveSettings() {
	l.writeSettings(false)
}
