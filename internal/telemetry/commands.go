package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/dumacp/go-logs/pkg/logs"
)

// Command is one decoded instruction from the inbound control topic.
// Value carries the scalar argument for the commands that take one.
type Command struct {
	Name  string  `json:"cmd"`
	Value float64 `json:"value"`
}

// HandlerFunc executes one command.
type HandlerFunc func(cmd Command)

// Dispatcher decodes framed command payloads and routes them to the
// handlers the embedding code registered. It does not interpret command
// semantics.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a command name, replacing any previous
// binding.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.handlers[name] = fn
}

// Dispatch decodes one payload and invokes its handler.
func (d *Dispatcher) Dispatch(payload []byte) error {
	cmd := Command{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("command decode: %s", err)
	}
	fn, ok := d.handlers[cmd.Name]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	logs.LogBuild.Printf("command %q value %v", cmd.Name, cmd.Value)
	fn(cmd)
	return nil
}
