package telemetry

import (
	"fmt"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Gateway owns the broker connection. Publish is fire-and-forget from
// the caller's point of view: token waits run on paho goroutines, never
// on the control loop.
type Gateway struct {
	client   mqtt.Client
	clientID string
}

func NewGateway(clientID string) *Gateway {
	return &Gateway{clientID: clientID}
}

// Open connects to the broker. Auto-reconnect keeps the session alive
// afterwards, so a transient failure here is not fatal to the loop.
func (g *Gateway) Open(broker string) error {
	opt := mqtt.NewClientOptions().AddBroker(broker)
	opt.SetAutoReconnect(true)
	opt.SetClientID(fmt.Sprintf("%s-%d", g.clientID, time.Now().Unix()))
	opt.SetKeepAlive(30 * time.Second)
	opt.SetConnectRetryInterval(10 * time.Second)
	g.client = mqtt.NewClient(opt)
	tk := g.client.Connect()
	if !tk.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connect wait error")
	}
	return tk.Error()
}

// Publish hands the payload to the broker session.
func (g *Gateway) Publish(topic string, payload []byte) {
	if g.client == nil {
		return
	}
	tk := g.client.Publish(topic, 0, false, payload)
	go func() {
		if !tk.WaitTimeout(3 * time.Second) {
			logs.LogWarn.Printf("publish timeout, topic %q", topic)
			return
		}
		if err := tk.Error(); err != nil {
			logs.LogError.Printf("publish error: %s, topic %q", err, topic)
		}
	}()
}

// Subscribe registers a handler for inbound payloads on a topic.
func (g *Gateway) Subscribe(topic string, handler func([]byte)) error {
	if g.client == nil {
		return fmt.Errorf("gateway is not open")
	}
	h := func(client mqtt.Client, m mqtt.Message) {
		logs.LogBuild.Printf("local topic -> %q", m.Topic())
		m.Ack()
		handler(m.Payload())
	}
	if tk := g.client.Subscribe(topic, 1, h); !tk.WaitTimeout(3 * time.Second) {
		if err := tk.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Tick satisfies the transport collaborator contract. The paho client
// maintains the connection on its own goroutines, so there is no work
// to slice here.
func (g *Gateway) Tick() {}
