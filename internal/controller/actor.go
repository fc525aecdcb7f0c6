// Package controller hosts the control loop inside an actor. A
// self-ticker drives iterations through the mailbox, so receiver bytes,
// inbound commands and loop passes all execute on one thread.
package controller

import (
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-coop/internal/gps/device"
	"github.com/dumacp/go-coop/internal/scheduler"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

// iteratePeriod paces the cooperative loop. One pass is cheap; 10 ms
// keeps the door's motor supervision responsive.
const iteratePeriod = 10 * time.Millisecond

// MsgCommand carries one inbound framed command payload.
type MsgCommand struct {
	Data []byte
}

type msgIterate struct{}

// Actor wires the loop to its mailbox.
type Actor struct {
	loop     *scheduler.Loop
	input    *Buffer
	commands *telemetry.Dispatcher
	quit     chan int
}

func NewActor(loop *scheduler.Loop, input *Buffer, commands *telemetry.Dispatcher) *Actor {
	return &Actor{loop: loop, input: input, commands: commands}
}

func (a *Actor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("actor started \"%s\"", ctx.Self().Id)
		a.loop.Setup()
		a.quit = make(chan int)
		go tick(ctx, a.quit)
	case *msgIterate:
		a.loop.Iterate()
	case *device.MsgData:
		a.input.Feed(msg.Data)
	case *MsgCommand:
		if err := a.commands.Dispatch(msg.Data); err != nil {
			logs.LogWarn.Printf("command: %s", err)
		}
	case *actor.Stopping:
		logs.LogInfo.Printf("actor stopping \"%s\"", ctx.Self().Id)
		a.closeQuit()
	}
}

// closeQuit stops the ticker goroutine. Safe when Started never ran or
// when stopping repeats.
func (a *Actor) closeQuit() {
	if a.quit == nil {
		return
	}
	close(a.quit)
	a.quit = nil
}

func tick(ctx actor.Context, quit <-chan int) {
	rootctx := ctx.ActorSystem().Root
	self := ctx.Self()
	t1 := time.NewTicker(iteratePeriod)
	defer t1.Stop()
	for {
		select {
		case <-t1.C:
			rootctx.Send(self, &msgIterate{})
		case <-quit:
			return
		}
	}
}
