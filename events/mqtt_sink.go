package events

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cyberinferno/snowcast/logger"
)

// DefaultMQTTTopicPrefix is prepended to the event type to form the topic.
const DefaultMQTTTopicPrefix = "snowcast/events"

const mqttPublishTimeout = 5 * time.Second

// MQTTPublisher is the subset of mqtt.Client used by MQTTSink.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes events as JSON to "<prefix>/<type>" with QoS 0. Call Run
// on its own goroutine; Publish only enqueues.
type MQTTSink struct {
	*worker
	client MQTTPublisher
	prefix string
}

// NewMQTTSink creates an MQTTSink.
func NewMQTTSink(client MQTTPublisher, prefix string, buffer int, log logger.Logger) *MQTTSink {
	if prefix == "" {
		prefix = DefaultMQTTTopicPrefix
	}

	s := &MQTTSink{client: client, prefix: prefix}
	s.worker = newWorker("mqtt", buffer, s.deliver, log)
	return s
}

// NewMQTTClient connects a paho client to broker (e.g. "tcp://127.0.0.1:1883").
//
// Parameters:
//   - broker: Broker URL
//   - clientID: MQTT client identifier
//   - log: Logger for connection state changes
//
// Returns:
//   - The connected client, or an error if the connection fails
func NewMQTTClient(broker, clientID string, log logger.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected", logger.Field{Key: "broker", Value: broker})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", logger.Field{Key: "error", Value: err})
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttPublishTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}

	return client, nil
}

// Topic returns the topic an event of type t is published to.
func (s *MQTTSink) Topic(t Type) string {
	return s.prefix + "/" + string(t)
}

func (s *MQTTSink) deliver(_ context.Context, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}

	token := s.client.Publish(s.Topic(ev.Type), 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", s.Topic(ev.Type))
	}

	return token.Error()
}
