package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-coop/internal/astro"
	"github.com/dumacp/go-coop/internal/beeper"
	"github.com/dumacp/go-coop/internal/controller"
	"github.com/dumacp/go-coop/internal/door"
	"github.com/dumacp/go-coop/internal/gps"
	"github.com/dumacp/go-coop/internal/gps/device"
	"github.com/dumacp/go-coop/internal/hardware"
	"github.com/dumacp/go-coop/internal/light"
	"github.com/dumacp/go-coop/internal/scheduler"
	"github.com/dumacp/go-coop/internal/settings"
	"github.com/dumacp/go-coop/internal/telemetry"
	"github.com/dumacp/go-logs/pkg/logs"
)

var debug bool
var logstd bool
var version bool

var broker string
var portGPS string
var baudRate int
var settingsPath string

var siteLat float64
var siteLon float64
var maxDistance float64

var pinMotorUp string
var pinMotorDown string
var pinSwitchOpen string
var pinSwitchClosed string
var pinLight string
var pinBuzzer string
var pinHeartbeat string

const (
	versionString = "1.0.3"
	clientID      = "coopd"
)

func init() {
	flag.BoolVar(&debug, "debug", false, "debug")
	flag.BoolVar(&logstd, "logStd", false, "logs in stderr")
	flag.BoolVar(&version, "version", false, "show version")
	flag.StringVar(&broker, "broker", "tcp://127.0.0.1:1883", "telemetry broker url")
	flag.StringVar(&portGPS, "portGPS", "/dev/ttyGPS", "device serial to read.")
	flag.IntVar(&baudRate, "baudRate", 9600, "baud rate to capture nmea's frames.")
	flag.StringVar(&settingsPath, "settings", "/var/lib/coopd/settings.bin", "settings file path")
	flag.Float64Var(&siteLat, "siteLat", 0, "installed site latitude")
	flag.Float64Var(&siteLon, "siteLon", 0, "installed site longitude")
	flag.Float64Var(&maxDistance, "maxDistance", 500, "max meters between fix and site (0 disables)")
	flag.StringVar(&pinMotorUp, "pinMotorUp", "GPIO17", "door motor up relay pin")
	flag.StringVar(&pinMotorDown, "pinMotorDown", "GPIO27", "door motor down relay pin")
	flag.StringVar(&pinSwitchOpen, "pinSwitchOpen", "GPIO22", "door open limit switch pin")
	flag.StringVar(&pinSwitchClosed, "pinSwitchClosed", "GPIO23", "door closed limit switch pin")
	flag.StringVar(&pinLight, "pinLight", "GPIO24", "light relay pin")
	flag.StringVar(&pinBuzzer, "pinBuzzer", "GPIO25", "buzzer pin")
	flag.StringVar(&pinHeartbeat, "pinHeartbeat", "GPIO5", "heartbeat LED pin")
}

func main() {

	flag.Parse()
	if version {
		fmt.Printf("version: %s\n", versionString)
		os.Exit(2)
	}
	initLogs(debug, logstd)

	if v, err := getEnv("BROKER"); err == nil {
		logs.LogInfo.Printf("new broker from ENV: %q", v)
		broker = v
	}
	if v, err := getEnvFloat("SITE_LAT"); err == nil {
		siteLat = v
	}
	if v, err := getEnvFloat("SITE_LON"); err == nil {
		siteLon = v
	}

	if err := hardware.Init(); err != nil {
		logs.LogWarn.Printf("gpio init: %s", err)
	}

	actuator := hardware.NewDoorActuator(pinMotorUp, pinMotorDown, pinSwitchOpen, pinSwitchClosed)
	relay := hardware.NewLightRelay(pinLight)
	buzzer := hardware.NewBuzzer(pinBuzzer)
	heartbeat := hardware.NewHeartbeatLED(pinHeartbeat)

	gateway := telemetry.NewGateway(clientID)
	framer := telemetry.NewFramer(gateway)
	beep := beeper.New(buzzer)
	errs := scheduler.NewRegister(beep)
	sun := astro.NewSunCalc()
	dr := door.New(actuator, sun, errs, beep)
	lt := light.New(relay, sun)
	parser := gps.NewParser()
	input := controller.NewBuffer()
	store := settings.NewStore(settingsPath)

	loop := scheduler.NewLoop(scheduler.Config{
		Broker:          broker,
		SiteLat:         siteLat,
		SiteLon:         siteLon,
		MaxSiteDistance: maxDistance,
	}, scheduler.Collaborators{
		Input:     input,
		Position:  parser,
		Astro:     sun,
		Door:      dr,
		Light:     lt,
		Beeper:    beep,
		Transport: gateway,
		Telemetry: framer,
		Heartbeat: heartbeat,
		Errors:    errs,
		Store:     store,
	})

	commands := telemetry.NewDispatcher()
	controller.RegisterCommands(commands, loop, dr, lt)

	rootContext := actor.NewActorSystem().Root

	props := actor.PropsFromFunc(func(c actor.Context) {
		switch msg := c.Message().(type) {
		case *actor.Started:
			gpsA := device.NewActor(portGPS, baudRate)
			propsGPS := actor.PropsFromFunc(gpsA.Receive)
			controlA := controller.NewActor(loop, input, commands)
			propsControl := actor.PropsFromFunc(controlA.Receive)
			pidGPS, err := c.SpawnNamed(propsGPS, "gpsdevice")
			if err != nil {
				logs.LogError.Panic(err)
			}
			pidControl, err := c.SpawnNamed(propsControl, "controller")
			if err != nil {
				logs.LogError.Panic(err)
			}
			c.Watch(pidGPS)
			c.Watch(pidControl)
			c.RequestWithCustomSender(pidGPS, &device.MsgSubscribe{}, pidControl)

			err = gateway.Subscribe(telemetry.TopicCommands, func(payload []byte) {
				rootContext.Send(pidControl, &controller.MsgCommand{Data: payload})
			})
			if err != nil {
				logs.LogWarn.Printf("command subscribe: %s", err)
			}
		case *actor.Terminated:
			logs.LogError.Printf("actor terminated: %s", msg.Who.GetId())
		}
	})

	_, err := rootContext.SpawnNamed(props, "coop")
	if err != nil {
		logs.LogError.Fatalln(err)
	}
	time.Sleep(100 * time.Millisecond)

	finish := make(chan os.Signal, 1)
	signal.Notify(finish, syscall.SIGINT)
	signal.Notify(finish, syscall.SIGTERM)

	for v := range finish {
		logs.LogError.Println(v)
		return
	}

}

func getEnv(name string) (string, error) {
	v := os.Getenv(name)
	if len(v) <= 0 {
		return "", fmt.Errorf("%s not found", name)
	}
	return v, nil
}

func getEnvFloat(name string) (float64, error) {
	v, err := getEnv(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}
