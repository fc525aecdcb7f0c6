package scheduler

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dumacp/go-coop/internal/gps"
	"github.com/dumacp/go-coop/internal/settings"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeInput struct {
	data []byte
}

func (f *fakeInput) Drain(p []byte) int {
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n
}

type fakePosition struct {
	fix    gps.Fix
	bad    int
	parsed []byte
}

func (f *fakePosition) Parse(data []byte) { f.parsed = append(f.parsed, data...) }
func (f *fakePosition) Fix() gps.Fix      { return f.fix }
func (f *fakePosition) BadFrames() int    { return f.bad }
func (f *fakePosition) ResetBadFrames()   { f.bad = 0 }
func (f *fakePosition) Clear()            { f.fix = gps.Fix{} }

type fakeAstro struct {
	valid bool
	calls int
}

func (f *fakeAstro) ProcessFixData(fix gps.Fix) bool {
	f.calls++
	return f.valid
}

func (f *fakeAstro) SendTelemetry(t *telemetry.Framer) {
	t.TransmissionStart()
	t.SendTerm("astro", nil)
	t.TransmissionEnd()
}

type fakeController struct {
	tag    string
	setups int
	ticks  int
	checks int
	saves  []bool
	loads  int
}

func (f *fakeController) Setup()     { f.setups++ }
func (f *fakeController) Tick()      { f.ticks++ }
func (f *fakeController) CheckTime() { f.checks++ }

func (f *fakeController) SendTelemetry(t *telemetry.Framer) {
	t.TransmissionStart()
	t.SendTerm(f.tag, nil)
	t.TransmissionEnd()
}

func (f *fakeController) SaveSettings(st *settings.Store, defaults bool) {
	f.saves = append(f.saves, defaults)
	st.PutUint8(7)
}

func (f *fakeController) LoadSettings(st *settings.Store) error {
	f.loads++
	_, err := st.Uint8()
	return err
}

type fakeBeeper struct {
	repeats []int
	ticks   int
}

func (f *fakeBeeper) Setup() {}
func (f *fakeBeeper) Tick()  { f.ticks++ }
func (f *fakeBeeper) Beep(freq, onMs, offMs uint, repeat int) {
	f.repeats = append(f.repeats, repeat)
}

type fakeTransport struct {
	opened []string
	ticks  int
}

func (f *fakeTransport) Open(addr string) error { f.opened = append(f.opened, addr); return nil }
func (f *fakeTransport) Tick()                  { f.ticks++ }

type fakeHeartbeat struct {
	toggles int
}

func (f *fakeHeartbeat) Toggle() { f.toggles++ }

type fakePub struct {
	payloads [][]byte
}

func (p *fakePub) Publish(topic string, payload []byte) {
	p.payloads = append(p.payloads, payload)
}

type rig struct {
	loop      *Loop
	clock     *fakeClock
	input     *fakeInput
	position  *fakePosition
	astro     *fakeAstro
	door      *fakeController
	light     *fakeController
	beeper    *fakeBeeper
	transport *fakeTransport
	heartbeat *fakeHeartbeat
	pub       *fakePub
	errors    *Register
	store     *settings.Store
}

func newRig(t *testing.T, path string) *rig {
	t.Helper()
	logs.LogInfo = logs.New(&bytes.Buffer{}, "", 0)
	logs.LogWarn = logs.New(&bytes.Buffer{}, "", 0)
	logs.LogError = logs.New(&bytes.Buffer{}, "", 0)
	logs.LogBuild = logs.New(&bytes.Buffer{}, "", 0)

	if path == "" {
		path = filepath.Join(t.TempDir(), "settings.bin")
	}
	r := &rig{
		clock:     &fakeClock{now: time.Date(2022, 5, 12, 14, 0, 0, 0, time.UTC)},
		input:     &fakeInput{},
		position:  &fakePosition{},
		astro:     &fakeAstro{},
		door:      &fakeController{tag: "door"},
		light:     &fakeController{tag: "light"},
		beeper:    &fakeBeeper{},
		transport: &fakeTransport{},
		heartbeat: &fakeHeartbeat{},
		pub:       &fakePub{},
		store:     settings.NewStore(path),
	}
	r.errors = NewRegister(r.beeper)
	r.loop = NewLoop(Config{Broker: "tcp://127.0.0.1:1883"}, Collaborators{
		Input:     r.input,
		Position:  r.position,
		Astro:     r.astro,
		Door:      r.door,
		Light:     r.light,
		Beeper:    r.beeper,
		Transport: r.transport,
		Telemetry: telemetry.NewFramer(r.pub),
		Heartbeat: r.heartbeat,
		Errors:    r.errors,
		Store:     r.store,
	})
	r.loop.SetClock(r.clock.Now)
	r.loop.Setup()
	return r
}

func (r *rig) iterate(n int) {
	for i := 0; i < n; i++ {
		r.loop.Iterate()
	}
}

func terms(t *testing.T, payload []byte) []telemetry.Term {
	t.Helper()
	var tx struct {
		Terms []telemetry.Term `json:"terms"`
	}
	if err := json.Unmarshal(payload, &tx); err != nil {
		t.Fatalf("payload decode: %s", err)
	}
	return tx.Terms
}

func TestLoopSettingsLatchAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.bin")

	// First boot: no file, so the loop must write defaults before any
	// read-back.
	r := newRig(t, path)
	r.iterate(3)
	if len(r.door.saves) != 1 || !r.door.saves[0] {
		t.Fatalf("door saves = %v, want one default save", r.door.saves)
	}
	if len(r.light.saves) != 1 || !r.light.saves[0] {
		t.Fatalf("light saves = %v, want one default save", r.light.saves)
	}
	if r.door.loads != 1 || r.light.loads != 1 {
		t.Errorf("loads = %d/%d, want 1/1 (latched)", r.door.loads, r.light.loads)
	}

	// Second boot on the same file: version matches, the default-write
	// pass must not run.
	r2 := newRig(t, path)
	r2.iterate(3)
	if len(r2.door.saves) != 0 || len(r2.light.saves) != 0 {
		t.Errorf("saves = %v/%v, want none on version match", r2.door.saves, r2.light.saves)
	}
	if r2.door.loads != 1 || r2.light.loads != 1 {
		t.Errorf("loads = %d/%d, want 1/1", r2.door.loads, r2.light.loads)
	}
}

func TestLoopVersionMismatchRewritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.bin")
	r := newRig(t, path)
	r.iterate(1)

	// Corrupt only the version byte.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read settings: %s", err)
	}
	data[4] = 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write settings: %s", err)
	}

	r2 := newRig(t, path)
	r2.iterate(1)
	if len(r2.door.saves) != 1 || !r2.door.saves[0] {
		t.Errorf("door saves = %v, want one default save on version mismatch", r2.door.saves)
	}
	if r2.door.loads != 1 {
		t.Errorf("door loads = %d, want 1 after the rewrite", r2.door.loads)
	}
}

func TestLoopNoDataError(t *testing.T) {
	r := newRig(t, "")
	startBeeps := len(r.beeper.repeats)

	// One full short interval without receiver bytes while unlocked.
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if !r.errors.Asserted(ErrorGPSNoData) {
		t.Fatalf("no-data error not asserted")
	}
	beepsAfterSet := len(r.beeper.repeats)
	if beepsAfterSet == startBeeps {
		t.Errorf("assertion did not alert")
	}

	// Still silent: sticky, no second alert for the no-data kind.
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if !r.errors.Asserted(ErrorGPSNoData) {
		t.Errorf("no-data error dropped without bytes")
	}

	// Bytes resume: cleared exactly once.
	r.input.data = []byte("$GPRMC")
	r.iterate(1)
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.errors.Asserted(ErrorGPSNoData) {
		t.Errorf("no-data error still asserted after bytes resumed")
	}
	if string(r.position.parsed) != "$GPRMC" {
		t.Errorf("input bytes did not reach the parser: %q", r.position.parsed)
	}
}

func TestLoopAdaptiveRearm(t *testing.T) {
	r := newRig(t, "")

	// Unlocked: fires on the short interval.
	r.input.data = []byte("x")
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.astro.calls != 1 {
		t.Fatalf("astro calls = %d, want 1", r.astro.calls)
	}

	// Lock acquired between firings: this firing re-arms long.
	r.position.fix = gps.Fix{Locked: true}
	r.input.data = []byte("x")
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.astro.calls != 2 {
		t.Fatalf("astro calls = %d, want 2", r.astro.calls)
	}

	// Short interval later: nothing fires, the long interval is already
	// in effect.
	r.input.data = []byte("x")
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.astro.calls != 2 {
		t.Errorf("time check fired on the short interval after lock")
	}

	r.clock.advance(TimeCheckPeriodSlow - TimeCheckPeriodFast)
	r.iterate(1)
	if r.astro.calls != 3 {
		t.Errorf("time check missed the long interval, calls = %d", r.astro.calls)
	}
}

func TestLoopSilenceDropsStaleFix(t *testing.T) {
	r := newRig(t, "")

	// Bytes flowing and a locked fix: the long cadence takes over.
	r.input.data = []byte("$GPRMC")
	r.position.fix = gps.Fix{Locked: true, Time: r.clock.now}
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.errors.Asserted(ErrorGPSNoLock) {
		t.Fatalf("lock not recognized")
	}

	// The receiver dies for one full long interval: the fix must be
	// dropped, not trusted frozen.
	r.clock.advance(TimeCheckPeriodSlow)
	r.iterate(1)
	if !r.errors.Asserted(ErrorGPSNoData) {
		t.Fatalf("silence not flagged")
	}
	if r.position.fix.Locked {
		t.Errorf("stale fix still locked after receiver silence")
	}
	if !r.errors.Asserted(ErrorGPSNoLock) {
		t.Errorf("stale lock still trusted after receiver silence")
	}

	// Dropping the lock restores the fast probing cadence.
	calls := r.astro.calls
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.astro.calls != calls+1 {
		t.Errorf("fast cadence not restored after the fix was dropped")
	}
}

func TestLoopCheckTimeGatedOnValidity(t *testing.T) {
	r := newRig(t, "")

	r.astro.valid = false
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.door.checks != 0 || r.light.checks != 0 {
		t.Errorf("CheckTime ran with invalid time")
	}
	if !r.errors.Asserted(ErrorSunCalcInvalid) {
		t.Errorf("suncalc invalidity not flagged")
	}

	r.astro.valid = true
	r.position.fix = gps.Fix{Locked: true}
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if r.door.checks != 1 || r.light.checks != 1 {
		t.Errorf("CheckTime did not run on valid time: %d/%d", r.door.checks, r.light.checks)
	}
	if r.errors.Asserted(ErrorSunCalcInvalid) {
		t.Errorf("suncalc flag not cleared")
	}
}

func TestLoopTelemetryBroadcast(t *testing.T) {
	r := newRig(t, "")

	r.clock.advance(TelemetryPeriod)
	// One iteration queues the broadcast; the following passes publish
	// one transmission each.
	r.iterate(16)

	if r.heartbeat.toggles != 1 {
		t.Errorf("heartbeat toggles = %d, want 1", r.heartbeat.toggles)
	}
	if len(r.pub.payloads) < 5 {
		t.Fatalf("transmissions = %d, want at least 5", len(r.pub.payloads))
	}

	first := terms(t, r.pub.payloads[0])
	if first[0].Tag != telemetry.TagVersion {
		t.Errorf("first transmission tag = %q, want %q", first[0].Tag, telemetry.TagVersion)
	}
	second := terms(t, r.pub.payloads[1])
	if second[0].Tag != telemetry.TagErrors {
		t.Errorf("second transmission tag = %q, want %q", second[0].Tag, telemetry.TagErrors)
	}
	// No error flags asserted, so the collaborator hooks follow
	// directly in fixed order.
	wantOrder := []string{"astro", "door", "light"}
	for i, want := range wantOrder {
		got := terms(t, r.pub.payloads[2+i])
		if got[0].Tag != want {
			t.Errorf("transmission %d tag = %q, want %q", 2+i, got[0].Tag, want)
		}
	}
}

func TestLoopUnconditionalTicks(t *testing.T) {
	r := newRig(t, "")
	r.iterate(5)
	if r.transport.ticks != 5 || r.beeper.ticks != 5 {
		t.Errorf("transport/beeper ticks = %d/%d, want 5/5", r.transport.ticks, r.beeper.ticks)
	}
	if r.door.ticks != 5 || r.light.ticks != 5 {
		t.Errorf("door/light ticks = %d/%d, want 5/5", r.door.ticks, r.light.ticks)
	}
}

func TestLoopSiteDistance(t *testing.T) {
	logs.LogWarn = logs.New(&bytes.Buffer{}, "", 0)
	logs.LogInfo = logs.New(&bytes.Buffer{}, "", 0)

	path := filepath.Join(t.TempDir(), "settings.bin")
	r := newRig(t, path)
	r.loop.cfg.SiteLat = 6.1649
	r.loop.cfg.SiteLon = -75.6017
	r.loop.cfg.MaxSiteDistance = 500

	// A locked fix roughly 11 km north of the site.
	r.input.data = []byte("x")
	r.position.fix = gps.Fix{Locked: true, Lat: 6.2649, Lon: -75.6017}
	r.clock.advance(TimeCheckPeriodFast)
	r.iterate(1)
	if !r.errors.Asserted(ErrorPositionDrift) {
		t.Errorf("drift not flagged for a distant fix")
	}

	r.input.data = []byte("x")
	r.position.fix = gps.Fix{Locked: true, Lat: 6.1649, Lon: -75.6017}
	r.clock.advance(TimeCheckPeriodSlow)
	r.iterate(1)
	if r.errors.Asserted(ErrorPositionDrift) {
		t.Errorf("drift flag not cleared at the site")
	}
}
