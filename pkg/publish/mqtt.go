// Package publish sends processed sessions to an MQTT broker so control
// room displays can follow Q0 results as they are produced.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
)

const publishTimeout = 5 * time.Second

// client is the part of mqtt.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher publishes processed sessions as retained JSON messages.
type Publisher struct {
	client client
	prefix string
}

// Connect dials broker, e.g. tcp://localhost:1883, and returns a publisher
// for topics under prefix.
func Connect(broker, prefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("q0-%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logrus.WithField("broker", broker).Info("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithError(err).WithField("broker", broker).Warn("lost connection to MQTT broker")
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to %s", broker)
	}
	return newPublisher(c, prefix), nil
}

func newPublisher(c client, prefix string) *Publisher {
	return &Publisher{client: c, prefix: strings.TrimSuffix(prefix, "/")}
}

// Topic returns where a session is published: <prefix>/<kind>/<id>.
func (p *Publisher) Topic(s *q0.Session) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, strings.ToLower(string(s.Kind())), s.ID())
}

// SaveSession publishes the summary of a processed session.
func (p *Publisher) SaveSession(ctx context.Context, s *q0.Session) error {
	payload, err := json.Marshal(types.NewSessionResponse(s))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode session %s", s.ID())
	}

	topic := p.Topic(s)
	token := p.client.Publish(topic, 1, true, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return pkgerrors.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return pkgerrors.Wrapf(err, "failed to publish to %s", topic)
	}

	logrus.WithFields(logrus.Fields{
		"topic": topic,
		"bytes": len(payload),
	}).Debug("session published")
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
