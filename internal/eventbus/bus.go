// Package eventbus is an internal, embedded-NATS pub/sub used exclusively
// for operator visibility (health snapshots, websocket push). It never
// carries the host-to-sandbox protocol, which is file-IPC only.
package eventbus

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type Bus struct {
	server *natsserver.Server
	port   int
}

func New(cfg config.EventBusConfig) (*Bus, error) {
	return newBus(cfg, cfg.Port)
}

// NewForTest creates a Bus on a random port for testing.
func NewForTest(cfg config.EventBusConfig) (*Bus, error) {
	return newBus(cfg, natsserver.RANDOM_PORT)
}

func newBus(cfg config.EventBusConfig, port int) (*Bus, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data/eventbus"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, rterr.New(rterr.Other, "create eventbus data dir", err)
	}

	opts := &natsserver.Options{
		Port:     port,
		NoLog:    true,
		NoSigs:   true,
		StoreDir: dataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, rterr.New(rterr.Other, "create eventbus server", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, rterr.New(rterr.Other, "eventbus server not ready", fmt.Errorf("timed out waiting for readiness"))
	}

	actualPort := ns.Addr().(*net.TCPAddr).Port

	return &Bus{server: ns, port: actualPort}, nil
}

func (b *Bus) ClientURL() string { return b.server.ClientURL() }

func (b *Bus) Port() int { return b.port }

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}

// Topic names used for operator-visibility events only.
const (
	TopicHealth           = "events.health"
	TopicContainerStarted = "events.container.started"
	TopicContainerEnded   = "events.container.ended"
	TopicTaskExecuted     = "events.task.executed"
)

type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(bus *Bus) (*Publisher, error) {
	conn, err := nats.Connect(bus.ClientURL())
	if err != nil {
		return nil, rterr.New(rterr.Other, "connect eventbus publisher", err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return rterr.New(rterr.Other, "marshal eventbus payload", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *Publisher) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return p.conn.Subscribe(topic, handler)
}

func (p *Publisher) Close() {
	p.conn.Close()
}
