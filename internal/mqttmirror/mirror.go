// Package mqttmirror publishes mesh traffic observed by the gateway to an
// MQTT broker. Unlike the Meshtastic firmware's own MQTT module, which
// treats a broker as an alternate radio transport, this mirror is
// publish-only and admin-configurable at runtime: it never feeds packets
// back into the mesh, it only echoes what the gateway already captured.
package mqttmirror

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/message"
)

// Config configures the mirror. Read from the settings table at runtime,
// not from process-environment configuration.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Mirror publishes message.Packet records to an MQTT broker.
type Mirror struct {
	cfg    Config
	client mqtt.Client
	logger *zap.Logger
}

// New connects to the broker described by cfg. The caller should call
// Close when the mirror is no longer needed.
func New(cfg Config) (*Mirror, error) {
	logger := logging.With(zap.String("component", "mqtt-mirror"))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("meshtastic-gateway-mirror-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt mirror connection lost", zap.Error(err))
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt mirror: connect timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("mqtt mirror: connect: %w", token.Error())
	}

	logger.Info("mqtt mirror connected", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))

	return &Mirror{cfg: cfg, client: client, logger: logger}, nil
}

// Publish mirrors a single packet to the configured topic. Publish
// failures are logged, not returned, since the mirror is best-effort and
// must never block mesh traffic on a broker hiccup.
func (m *Mirror) Publish(pkt *message.Packet) {
	if pkt == nil {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		m.logger.Warn("marshal packet for mirror failed", zap.Error(err))
		return
	}
	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.logger.Warn("mqtt mirror publish failed", zap.Error(token.Error()))
		}
	}()
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(1000)
	}
}
