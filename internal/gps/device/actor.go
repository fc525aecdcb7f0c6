// Package device reads the positioning receiver's serial port and
// forwards raw lines to the subscribed consumer. The port is owned
// exclusively here; reconnection lives in the package FSM and repeats
// forever.
package device

import (
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

type actorgps struct {
	context     actor.Context
	fsm         *fsm.FSM
	portGPS     string
	baudRate    int
	consumerPID *actor.PID
	chQuit      chan int
}

// NewActor returns the serial reader actor for the receiver port.
func NewActor(portGPS string, baudRate int) actor.Actor {
	act := &actorgps{}
	act.portGPS = portGPS
	act.baudRate = baudRate
	act.fsm = initFSM()

	return act
}

func (act *actorgps) Receive(ctx actor.Context) {
	act.context = ctx
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("actor started \"%s\"", ctx.Self().Id)
		act.closeQuit()
		act.chQuit = make(chan int)
		act.startfsm(act.chQuit)
	case *actor.Stopping:
		logs.LogInfo.Printf("actor stopping \"%s\"", ctx.Self().Id)
		act.closeQuit()
	case *MsgSubscribe:
		if ctx.Sender() != nil {
			act.consumerPID = ctx.Sender()
		}
	case *msgFatal:
		logs.LogError.Printf("gps read failed: %s", msg.err)
		act.fsm.Event(readStopEvent)
	case *actor.Terminated:
		logs.LogError.Printf("actor terminated: %s", msg.Who.GetId())
	}
}

func (act *actorgps) closeQuit() {
	if act.chQuit == nil {
		return
	}
	select {
	case _, ok := <-act.chQuit:
		if ok {
			close(act.chQuit)
		}
	default:
		close(act.chQuit)
	}
	time.Sleep(300 * time.Millisecond)
}
