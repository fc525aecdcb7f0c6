package scheduler

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

type fakeAlerter struct {
	repeats []int
}

func (a *fakeAlerter) Beep(freq, onMs, offMs uint, repeat int) {
	a.repeats = append(a.repeats, repeat)
}

func TestRegisterEdgeTriggered(t *testing.T) {
	warnBuf := &bytes.Buffer{}
	infoBuf := &bytes.Buffer{}
	logs.LogWarn = logs.New(warnBuf, "", 0)
	logs.LogInfo = logs.New(infoBuf, "", 0)

	alerter := &fakeAlerter{}
	r := NewRegister(alerter)

	r.Report(ErrorGPSNoData, true)
	r.Report(ErrorGPSNoData, true)
	if len(alerter.repeats) != 1 {
		t.Errorf("beeps = %d, want 1", len(alerter.repeats))
	}
	if n := bytes.Count(warnBuf.Bytes(), []byte("\n")); n != 1 {
		t.Errorf("set diagnostics = %d, want 1", n)
	}
	if !r.Asserted(ErrorGPSNoData) {
		t.Errorf("flag not asserted")
	}

	r.Report(ErrorGPSNoData, false)
	r.Report(ErrorGPSNoData, false)
	if n := bytes.Count(infoBuf.Bytes(), []byte("\n")); n != 1 {
		t.Errorf("clear diagnostics = %d, want 1", n)
	}
	if len(alerter.repeats) != 1 {
		t.Errorf("clear transition beeped")
	}
	if r.Mask() != 0 {
		t.Errorf("mask = %#x, want 0", r.Mask())
	}
}

func TestRegisterBeepCodesUnique(t *testing.T) {
	seen := map[int]ErrorKind{}
	for kind := ErrorKind(0); kind < nErrorKinds; kind++ {
		count := errorTable[kind].beepCount
		if prev, ok := seen[count]; ok {
			t.Errorf("kinds %d and %d share beep code %d", prev, kind, count)
		}
		seen[count] = kind
	}
}

func TestRegisterMaskBits(t *testing.T) {
	logs.LogWarn = logs.New(&bytes.Buffer{}, "", 0)
	r := NewRegister(nil)
	r.Report(ErrorGPSNoLock, true)
	r.Report(ErrorDoorNotResponding, true)
	want := uint16(1)<<uint(ErrorGPSNoLock) | uint16(1)<<uint(ErrorDoorNotResponding)
	if r.Mask() != want {
		t.Errorf("mask = %#x, want %#x", r.Mask(), want)
	}
}

type fakePublisher struct {
	payloads [][]byte
}

func (p *fakePublisher) Publish(topic string, payload []byte) {
	p.payloads = append(p.payloads, payload)
}

func TestRegisterSendTelemetry(t *testing.T) {
	logs.LogWarn = logs.New(&bytes.Buffer{}, "", 0)

	pub := &fakePublisher{}
	f := telemetry.NewFramer(pub)
	r := NewRegister(nil)
	r.Report(ErrorGPSNoData, true)
	r.Report(ErrorSunCalcInvalid, true)

	r.SendTelemetry(f)
	for i := 0; i < 4; i++ {
		f.Tick()
	}
	if len(pub.payloads) != 2 {
		t.Fatalf("transmissions = %d, want 2", len(pub.payloads))
	}

	var tx struct {
		Terms []telemetry.Term `json:"terms"`
	}
	if err := json.Unmarshal(pub.payloads[0], &tx); err != nil {
		t.Fatalf("payload decode: %s", err)
	}
	if tx.Terms[0].Tag != telemetry.TagError {
		t.Errorf("first term tag = %q, want %q", tx.Terms[0].Tag, telemetry.TagError)
	}
	if int(tx.Terms[0].Value.(float64)) != int(ErrorGPSNoData) {
		t.Errorf("first term value = %v, want %d", tx.Terms[0].Value, ErrorGPSNoData)
	}
}
