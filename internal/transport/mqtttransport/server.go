package mqtttransport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/eventbridge/internal/transport"
)

// Listener is the server side of an MQTT-backed transport: a single
// autopaho connection that subscribes to the wildcard "<prefix>/+/to-server"
// filter and demultiplexes inbound messages by instance id into one
// transport.Connection per id, created lazily on first message.
//
// Limitation: the MQTT broker does not expose per-client disconnect
// notifications to an ordinary subscriber (that requires broker-specific
// $SYS topics or LWT conventions this core does not implement), so a
// Listener connection's Done channel closes only when Listener.Close is
// called, never on the remote client's own disconnect. This is a known
// gap relative to the WebSocket and in-memory transports, noted in
// DESIGN.md rather than silently glossed over.
type Listener struct {
	prefix string
	cm     *autopaho.ConnectionManager
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[string]*mqttConn
	accept chan transport.Connection
	closed bool
}

// Listen connects a Listener to brokerURL, subscribing to every
// instance's to-server topic under topicPrefix.
func Listen(ctx context.Context, brokerURL, topicPrefix string, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Listener{
		prefix: topicPrefix,
		logger: logger,
		conns:  make(map[string]*mqttConn),
		accept: make(chan transport.Connection, 16),
	}

	cfg, err := buildClientConfig(brokerURL, "eventbridge-server", logger, func(cm *autopaho.ConnectionManager) {
		subCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: topicPrefix + "/+/to-server", QoS: 0},
			},
		}); err != nil {
			logger.Error("mqtt listener subscribe failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	l.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		l.dispatch(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		logger.Warn("mqtt listener initial connection timed out, will retry in background", "error", err)
	}

	return l, nil
}

func (l *Listener) dispatch(topic string, payload []byte) {
	parts := stripTopicPrefix(topic)
	if len(parts) < 3 || parts[len(parts)-1] != "to-server" {
		l.logger.Debug("dropping message on unexpected mqtt topic", "topic", topic)
		return
	}
	instanceID := parts[len(parts)-2]

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	conn, ok := l.conns[instanceID]
	if !ok {
		conn = newMQTTConn(instanceID, l.prefix, l.cm)
		l.conns[instanceID] = conn
		l.accept <- conn
	}
	conn.deliver(payload)
}

func (l *Listener) Accept() <-chan transport.Connection { return l.accept }

// Broadcast publishes f on the shared broadcast topic every connected
// client subscribes to.
func (l *Listener) Broadcast(ctx context.Context, f transport.Frame) error {
	_, err := l.cm.Publish(ctx, &paho.Publish{
		Topic:   broadcastTopic(l.prefix),
		Payload: f.Payload,
		QoS:     0,
	})
	return err
}

// Send addresses f to one connection's own to-client topic.
func (l *Listener) Send(ctx context.Context, connID string, f transport.Frame) error {
	l.mu.Lock()
	_, ok := l.conns[connID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("mqtttransport: unknown connection %q", connID)
	}
	_, err := l.cm.Publish(ctx, &paho.Publish{
		Topic:   toClientTopic(l.prefix, connID),
		Payload: f.Payload,
		QoS:     0,
	})
	return err
}

// Close terminates every known connection and disconnects from the
// broker. New messages arriving after Close are dropped.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, c := range l.conns {
		c.terminate()
	}
	close(l.accept)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return l.cm.Disconnect(ctx)
}

type mqttConn struct {
	id      string
	prefix  string
	cm      *autopaho.ConnectionManager
	inbound chan transport.Frame
	done    chan struct{}

	closeOnce sync.Once
}

func newMQTTConn(id, prefix string, cm *autopaho.ConnectionManager) *mqttConn {
	return &mqttConn{
		id:      id,
		prefix:  prefix,
		cm:      cm,
		inbound: make(chan transport.Frame, frameBuffer),
		done:    make(chan struct{}),
	}
}

func (c *mqttConn) ID() string                     { return c.id }
func (c *mqttConn) Inbound() <-chan transport.Frame { return c.inbound }
func (c *mqttConn) Done() <-chan struct{}           { return c.done }

func (c *mqttConn) deliver(payload []byte) {
	select {
	case c.inbound <- transport.Frame{Payload: payload}:
	default:
	}
}

func (c *mqttConn) Send(ctx context.Context, f transport.Frame) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   toClientTopic(c.prefix, c.id),
		Payload: f.Payload,
		QoS:     0,
	})
	return err
}

func (c *mqttConn) terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.inbound)
	})
}
