package progress

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// DefaultTopic is the topic progress events are published to.
const DefaultTopic = "nodesweep/progress"

const publishTimeout = 5 * time.Second

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("mqtt connect timeout")

// Publisher is the subset of paho.Client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTReporter publishes each event as JSON. Publish failures are logged
// and never interrupt the run.
type MQTTReporter struct {
	mu    sync.Mutex
	pub   Publisher
	topic string
	qos   byte
}

// NewMQTTReporter returns a reporter publishing to topic through pub.
func NewMQTTReporter(pub Publisher, topic string) *MQTTReporter {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTReporter{pub: pub, topic: topic, qos: 1}
}

// Report publishes e.
func (r *MQTTReporter) Report(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		monitoring.Logf("mqtt: encode progress event: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	token := r.pub.Publish(r.topic, r.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		monitoring.Logf("mqtt: publish to %s timed out", r.topic)
		return
	}
	if err := token.Error(); err != nil {
		monitoring.Logf("mqtt: publish to %s: %v", r.topic, err)
	}
}

// Dial connects a paho client to broker and returns it. The caller owns the
// client and should Disconnect it when the run ends.
func Dial(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetKeepAlive(30 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	monitoring.Logf("mqtt: connected to %s", broker)
	return client, nil
}
