package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
)

const (
	TopicTelemetry = "COOP/telemetry"
	TopicCommands  = "COOP/commands"
)

// ProtocolVersion is bumped whenever the meaning of a term changes.
const ProtocolVersion = 1

// Tags for the terms the control loop emits itself. Collaborators
// define their own tags next to their SendTelemetry hooks.
const (
	TagVersion    = "version"
	TagErrors     = "errors"
	TagError      = "error"
	TagErrorLabel = "errorLabel"
)

// Term is one tagged unit of status inside a transmission. Value is nil
// for tag-only terms.
type Term struct {
	Tag   string      `json:"tag"`
	Value interface{} `json:"value,omitempty"`
}

// Publisher is the transport a finished transmission is handed to.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// maxPending bounds the backlog of finished transmissions waiting for a
// Tick; beyond it the oldest payload is dropped.
const maxPending = 16

// Framer brackets telemetry terms into transmissions. A transmission
// must be closed before the next one starts; nesting, or a term outside
// an open transmission, is a protocol violation.
type Framer struct {
	pub     Publisher
	clock   func() time.Time
	open    bool
	terms   []Term
	pending [][]byte
}

func NewFramer(pub Publisher) *Framer {
	return &Framer{pub: pub, clock: time.Now}
}

// SetClock replaces the time source for tests.
func (f *Framer) SetClock(clock func() time.Time) {
	f.clock = clock
}

// TransmissionStart opens a new transmission.
func (f *Framer) TransmissionStart() error {
	if f.open {
		return fmt.Errorf("telemetry: transmission already open")
	}
	f.open = true
	f.terms = f.terms[:0]
	return nil
}

// SendTerm appends one term to the open transmission. Terms keep the
// order of the SendTerm calls.
func (f *Framer) SendTerm(tag string, value interface{}) error {
	if !f.open {
		return fmt.Errorf("telemetry: term %q outside transmission", tag)
	}
	f.terms = append(f.terms, Term{Tag: tag, Value: value})
	return nil
}

// TransmissionEnd closes the transmission and queues its payload for
// the next Tick.
func (f *Framer) TransmissionEnd() error {
	if !f.open {
		return fmt.Errorf("telemetry: transmission not open")
	}
	f.open = false
	payload, err := json.Marshal(struct {
		TimeStamp float64 `json:"timeStamp"`
		Terms     []Term  `json:"terms"`
	}{
		TimeStamp: float64(f.clock().UnixNano()) / 1000000000,
		Terms:     f.terms,
	})
	if err != nil {
		return err
	}
	if len(f.pending) >= maxPending {
		logs.LogWarn.Printf("telemetry: backlog full, dropping oldest transmission")
		f.pending = f.pending[1:]
	}
	f.pending = append(f.pending, payload)
	return nil
}

// Tick publishes at most one finished transmission per call so a
// backlog cannot stall the control loop.
func (f *Framer) Tick() {
	if len(f.pending) == 0 {
		return
	}
	payload := f.pending[0]
	f.pending = f.pending[1:]
	if f.pub != nil {
		f.pub.Publish(TopicTelemetry, payload)
	}
}
