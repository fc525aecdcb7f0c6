package door

import (
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

const (
	sUnknown = "sUnknown"
	sOpen    = "sOpen"
	sClosed  = "sClosed"
	sOpening = "sOpening"
	sClosing = "sClosing"
)

const (
	openEvent   = "openEvent"
	closeEvent  = "closeEvent"
	openedEvent = "openedEvent"
	closedEvent = "closedEvent"
	stuckEvent  = "stuckEvent"
)

func initFSM() *fsm.FSM {
	f := fsm.NewFSM(
		sUnknown,
		fsm.Events{
			{Name: openEvent, Src: []string{sClosed, sUnknown, sClosing}, Dst: sOpening},
			{Name: closeEvent, Src: []string{sOpen, sUnknown, sOpening}, Dst: sClosing},
			{Name: openedEvent, Src: []string{sOpening}, Dst: sOpen},
			{Name: closedEvent, Src: []string{sClosing}, Dst: sClosed},
			{Name: stuckEvent, Src: []string{sOpening, sClosing}, Dst: sUnknown},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logs.LogBuild.Printf("FSM DOOR state Src: %v, state Dst: %v", e.Src, e.Dst)
			},
			"before_event": func(e *fsm.Event) {
				if e.Err != nil {
					e.Cancel(e.Err)
				}
			},
		},
	)
	return f
}
