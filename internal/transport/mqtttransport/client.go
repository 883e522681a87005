package mqtttransport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/eventbridge/internal/transport"
)

// clientTransport is the client side of an MQTT-backed transport: one
// logical connection addressed by instanceID.
type clientTransport struct {
	prefix     string
	instanceID string
	cm         *autopaho.ConnectionManager
	logger     *slog.Logger

	frames    chan transport.Frame
	connState chan transport.ConnState
}

// Dial connects to brokerURL and returns a transport.Transport
// addressed under instanceID within topicPrefix. It blocks until the
// initial connection succeeds or ctx expires; autopaho keeps retrying
// in the background thereafter, matching the teacher's Publisher.Start
// behavior of logging a timed-out initial connect rather than failing.
func Dial(ctx context.Context, brokerURL, topicPrefix, instanceID string, logger *slog.Logger) (transport.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &clientTransport{
		prefix:     topicPrefix,
		instanceID: instanceID,
		logger:     logger,
		frames:     make(chan transport.Frame, frameBuffer),
		connState:  make(chan transport.ConnState, 4),
	}

	clientID := "eventbridge-" + instanceID
	if len(clientID) > 23 {
		clientID = clientID[:23]
	}

	cfg, err := buildClientConfig(brokerURL, clientID, logger, func(cm *autopaho.ConnectionManager) {
		c.cm = cm
		select {
		case c.connState <- transport.Connected:
		default:
		}

		subCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: toClientTopic(topicPrefix, instanceID), QoS: 0},
				{Topic: broadcastTopic(topicPrefix), QoS: 0},
			},
		}); err != nil {
			logger.Error("mqtt transport subscribe failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		select {
		case c.frames <- transport.Frame{Payload: pr.Packet.Payload}:
		default:
			logger.Warn("mqtt transport inbound buffer full, dropping frame")
		}
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		logger.Warn("mqtt transport initial connection timed out, will retry in background", "error", err)
	}

	return c, nil
}

func (c *clientTransport) Publish(ctx context.Context, f transport.Frame) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt transport not connected")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   toServerTopic(c.prefix, c.instanceID),
		Payload: f.Payload,
		QoS:     0,
	})
	return err
}

func (c *clientTransport) Subscribe() <-chan transport.Frame { return c.frames }

func (c *clientTransport) Broadcast(ctx context.Context, f transport.Frame) error {
	return c.Publish(ctx, f)
}

func (c *clientTransport) ConnectionState() <-chan transport.ConnState { return c.connState }

func (c *clientTransport) Close() error {
	if c.cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	err := c.cm.Disconnect(ctx)
	select {
	case c.connState <- transport.Disconnected:
	default:
	}
	return err
}
