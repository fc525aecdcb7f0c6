package controller

import (
	"github.com/dumacp/go-coop/internal/door"
	"github.com/dumacp/go-coop/internal/light"
	"github.com/dumacp/go-coop/internal/scheduler"
	"github.com/dumacp/go-coop/internal/telemetry"
)

// RegisterCommands binds the inbound command set to the live
// subsystems. Handlers run on the controller actor's mailbox, the same
// thread as the loop, so they may mutate settings directly.
func RegisterCommands(d *telemetry.Dispatcher, loop *scheduler.Loop, dr *door.Door, lt *light.Light) {
	d.Register("doorOpen", func(telemetry.Command) {
		dr.SetMode(door.ModeForcedOpen)
		dr.CheckTime()
	})
	d.Register("doorClose", func(telemetry.Command) {
		dr.SetMode(door.ModeForcedClosed)
		dr.CheckTime()
	})
	d.Register("doorAuto", func(telemetry.Command) {
		dr.SetMode(door.ModeAuto)
	})
	d.Register("setOpenOffset", func(cmd telemetry.Command) {
		dr.SetOpenOffset(cmd.Value)
	})
	d.Register("setCloseOffset", func(cmd telemetry.Command) {
		dr.SetCloseOffset(cmd.Value)
	})
	d.Register("setMorningLight", func(cmd telemetry.Command) {
		lt.SetMorning(cmd.Value)
	})
	d.Register("setEveningLight", func(cmd telemetry.Command) {
		lt.SetEvening(cmd.Value)
	})
	d.Register("setDayLength", func(cmd telemetry.Command) {
		lt.SetMinDayLength(cmd.Value)
	})
	d.Register("saveSettings", func(telemetry.Command) {
		loop.SaveSettings()
	})
}
