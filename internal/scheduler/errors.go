package scheduler

import (
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

// ErrorKind enumerates the sticky error conditions the register tracks.
// Each kind owns one bit of the mask, so there is room for sixteen.
type ErrorKind int

const (
	ErrorGPSNoData ErrorKind = iota
	ErrorGPSBadData
	ErrorGPSNoLock
	ErrorSunCalcInvalid
	ErrorDoorNotPresent
	ErrorDoorUnknownState
	ErrorDoorNotResponding
	ErrorPositionDrift
	nErrorKinds
)

type errorInfo struct {
	label     string
	beepCount int
}

// errorTable maps every kind to its diagnostic label and the audible
// code played on assertion. The beep count is unique per kind so the
// failure can be identified without a display.
var errorTable = [nErrorKinds]errorInfo{
	ErrorGPSNoData:         {"no data from GPS receiver", 2},
	ErrorGPSBadData:        {"malformed GPS data", 3},
	ErrorGPSNoLock:         {"no GPS time lock", 4},
	ErrorSunCalcInvalid:    {"sun calculation invalid", 5},
	ErrorDoorNotPresent:    {"door controller not present", 6},
	ErrorDoorUnknownState:  {"door in unknown state", 7},
	ErrorDoorNotResponding: {"door not responding", 8},
	ErrorPositionDrift:     {"fix too far from configured site", 9},
}

const (
	errorBeepFreq  = 1175
	errorBeepOnMs  = 100
	errorBeepOffMs = 150
)

// Alerter plays the audible diagnostic pattern for an asserted error.
type Alerter interface {
	Beep(freq, onMs, offMs uint, repeat int)
}

// Register holds the sticky error flags, one bit per kind. Report is
// edge-triggered: only a real transition logs or beeps, re-asserting an
// already set flag is a no-op.
type Register struct {
	mask    uint16
	alerter Alerter
}

func NewRegister(alerter Alerter) *Register {
	return &Register{alerter: alerter}
}

// Report records the condition of one error kind. On a set transition
// it logs the label and plays the kind's audible code; on a clear
// transition it only logs.
func (r *Register) Report(kind ErrorKind, asserted bool) {
	if kind < 0 || kind >= nErrorKinds {
		return
	}
	bit := uint16(1) << uint(kind)
	if asserted == (r.mask&bit != 0) {
		return
	}
	info := errorTable[kind]
	if asserted {
		r.mask |= bit
		logs.LogWarn.Printf("error set: %s", info.label)
		if r.alerter != nil {
			r.alerter.Beep(errorBeepFreq, errorBeepOnMs, errorBeepOffMs, info.beepCount)
		}
		return
	}
	r.mask &^= bit
	logs.LogInfo.Printf("error cleared: %s", info.label)
}

// Asserted reports whether the kind's flag is currently set.
func (r *Register) Asserted(kind ErrorKind) bool {
	if kind < 0 || kind >= nErrorKinds {
		return false
	}
	return r.mask&(uint16(1)<<uint(kind)) != 0
}

// Mask returns the packed flag word for telemetry.
func (r *Register) Mask() uint16 {
	return r.mask
}

// SendTelemetry emits one transmission per asserted flag with its
// numeric code and label.
func (r *Register) SendTelemetry(f *telemetry.Framer) {
	for kind := ErrorKind(0); kind < nErrorKinds; kind++ {
		if !r.Asserted(kind) {
			continue
		}
		f.TransmissionStart()
		f.SendTerm(telemetry.TagError, int(kind))
		f.SendTerm(telemetry.TagErrorLabel, errorTable[kind].label)
		f.TransmissionEnd()
	}
}
