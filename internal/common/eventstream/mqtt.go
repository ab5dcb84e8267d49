package eventstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	mqttTimeout         = 5 * time.Second
	mqttDisconnectQuiet = 250 // milliseconds
)

type MqttEventStream struct {
	topic  string
	qos    byte
	client mqtt.Client
}

func NewMqttEventStream(broker, topic, clientId string, qos byte) (*MqttEventStream, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientId)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(mqttTimeout)
	client := mqtt.NewClient(opts)

	err := retry.Do(
		func() error {
			return waitToken(client.Connect())
		},
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("Connecting to MQTT broker %s failed (attempt %d): %s", broker, n+1, err)
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to MQTT broker %s", broker)
	}
	return &MqttEventStream{topic: topic, qos: qos, client: client}, nil
}

func (c *MqttEventStream) Publish(events []*Event) []error {
	var errs []error
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("error while marshalling event: %v", err))
			continue
		}
		if err := waitToken(c.client.Publish(c.topic, c.qos, false, data)); err != nil {
			errs = append(errs, fmt.Errorf("error when publishing to topic %q: %v", c.topic, err))
		}
	}
	return errs
}

func (c *MqttEventStream) Close() error {
	c.client.Disconnect(mqttDisconnectQuiet)
	return nil
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("timed out after %s", mqttTimeout)
	}
	return token.Error()
}
