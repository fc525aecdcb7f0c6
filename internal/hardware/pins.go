// Package hardware implements the controller's hardware interfaces on
// periph.io GPIO. A pin that cannot be resolved degrades to an absent
// or no-op implementation so the control loop keeps running and the
// error register reports the absence.
package hardware

import (
	"fmt"

	"github.com/dumacp/go-coop/internal/door"
	"github.com/dumacp/go-logs/pkg/logs"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Init loads the periph host drivers. Call once before resolving pins.
func Init() error {
	_, err := host.Init()
	return err
}

func byName(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("pin %q not present", name)
	}
	return pin, nil
}

func output(name string) gpio.PinIO {
	pin, err := byName(name)
	if err != nil {
		logs.LogWarn.Printf("output %s", err)
		return nil
	}
	if err := pin.Out(gpio.Low); err != nil {
		logs.LogWarn.Printf("output %q: %s", name, err)
		return nil
	}
	return pin
}

func input(name string) gpio.PinIO {
	pin, err := byName(name)
	if err != nil {
		logs.LogWarn.Printf("input %s", err)
		return nil
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		logs.LogWarn.Printf("input %q: %s", name, err)
		return nil
	}
	return pin
}

// DoorActuator drives the door motor through two relay outputs and
// senses the limit switches. Switches are wired active-low.
type DoorActuator struct {
	up       gpio.PinIO
	down     gpio.PinIO
	swOpen   gpio.PinIO
	swClosed gpio.PinIO
}

func NewDoorActuator(up, down, swOpen, swClosed string) *DoorActuator {
	return &DoorActuator{
		up:       output(up),
		down:     output(down),
		swOpen:   input(swOpen),
		swClosed: input(swClosed),
	}
}

// Present reports whether every door pin resolved.
func (d *DoorActuator) Present() bool {
	return d.up != nil && d.down != nil && d.swOpen != nil && d.swClosed != nil
}

func (d *DoorActuator) Raise() {
	if !d.Present() {
		return
	}
	d.down.Out(gpio.Low)
	d.up.Out(gpio.High)
}

func (d *DoorActuator) Lower() {
	if !d.Present() {
		return
	}
	d.up.Out(gpio.Low)
	d.down.Out(gpio.High)
}

func (d *DoorActuator) Stop() {
	if !d.Present() {
		return
	}
	d.up.Out(gpio.Low)
	d.down.Out(gpio.Low)
}

func (d *DoorActuator) Switches() door.SwitchState {
	if !d.Present() {
		return door.SwitchUnknown
	}
	atOpen := d.swOpen.Read() == gpio.Low
	atClosed := d.swClosed.Read() == gpio.Low
	switch {
	case atOpen && !atClosed:
		return door.SwitchOpen
	case atClosed && !atOpen:
		return door.SwitchClosed
	}
	return door.SwitchUnknown
}

// LightRelay switches the lamp output.
type LightRelay struct {
	pin gpio.PinIO
	on  bool
}

func NewLightRelay(name string) *LightRelay {
	return &LightRelay{pin: output(name)}
}

func (r *LightRelay) On() {
	r.on = true
	if r.pin != nil {
		r.pin.Out(gpio.High)
	}
}

func (r *LightRelay) Off() {
	r.on = false
	if r.pin != nil {
		r.pin.Out(gpio.Low)
	}
}

func (r *LightRelay) IsOn() bool {
	return r.on
}

// Buzzer is a plain on/off sounder; the requested frequency is ignored
// by the fixed-tone hardware.
type Buzzer struct {
	pin gpio.PinIO
}

func NewBuzzer(name string) *Buzzer {
	return &Buzzer{pin: output(name)}
}

func (b *Buzzer) SetTone(freq uint, on bool) {
	if b.pin == nil {
		return
	}
	if on {
		b.pin.Out(gpio.High)
		return
	}
	b.pin.Out(gpio.Low)
}

// HeartbeatLED is the loop's status indicator.
type HeartbeatLED struct {
	pin gpio.PinIO
	on  bool
}

func NewHeartbeatLED(name string) *HeartbeatLED {
	return &HeartbeatLED{pin: output(name)}
}

func (h *HeartbeatLED) Toggle() {
	h.on = !h.on
	if h.pin == nil {
		return
	}
	if h.on {
		h.pin.Out(gpio.High)
		return
	}
	h.pin.Out(gpio.Low)
}
