// Package publish pushes prices and cheap-period results to an MQTT broker
// using Home Assistant discovery.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
)

// MQTT publishes state topics and retained Home Assistant discovery configs.
type MQTT struct {
	client          mqtt.Client
	topicPrefix     string
	discoveryPrefix string
	nodeID          string
	priceUnit       string
	timeout         time.Duration

	mu        sync.Mutex
	announced bool
}

// Configured sets up the MQTT publisher based on flags. It is disabled when
// no broker is configured.
func Configured() *MQTT {
	m := &MQTT{}
	broker := lflag.String("mqtt-broker", "", "MQTT broker address (host:port); publishing is disabled when empty")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	clientID := lflag.String("mqtt-client-id", "real-electricity-price", "MQTT client ID")
	topicPrefix := lflag.String("mqtt-topic-prefix", "real_electricity_price", "Prefix for state topics")
	discoveryPrefix := lflag.String("mqtt-discovery-prefix", "homeassistant", "Home Assistant discovery prefix")
	priceUnit := lflag.String("mqtt-price-unit", "EUR/kWh", "Unit of measurement reported for prices")

	lflag.Do(func() {
		if *broker == "" {
			return
		}
		broker := *broker
		if !strings.Contains(broker, "://") {
			broker = "tcp://" + broker
		}
		opts := mqtt.NewClientOptions()
		opts.AddBroker(broker)
		opts.SetClientID(*clientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)
		if *username != "" {
			opts.SetUsername(*username)
		}
		if *password != "" {
			opts.SetPassword(*password)
		}
		// discovery configs are retained but the broker may have restarted
		opts.SetOnConnectHandler(func(mqtt.Client) {
			m.mu.Lock()
			m.announced = false
			m.mu.Unlock()
		})

		m.client = mqtt.NewClient(opts)
		m.topicPrefix = *topicPrefix
		m.discoveryPrefix = *discoveryPrefix
		m.nodeID = "real_electricity_price"
		m.priceUnit = *priceUnit
		m.timeout = 5 * time.Second
	})

	return m
}

// NewMQTT returns a publisher using client. It is mainly used by tests.
func NewMQTT(client mqtt.Client, topicPrefix, discoveryPrefix string) *MQTT {
	return &MQTT{
		client:          client,
		topicPrefix:     topicPrefix,
		discoveryPrefix: discoveryPrefix,
		nodeID:          "real_electricity_price",
		priceUnit:       "EUR/kWh",
		timeout:         5 * time.Second,
	}
}

// Enabled reports whether a broker is configured.
func (m *MQTT) Enabled() bool {
	return m.client != nil
}

// Connect connects to the broker.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return errors.New("unable to connect to mqtt broker in time")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "connected to mqtt broker")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func (m *MQTT) stateTopic(name string) string {
	return m.topicPrefix + "/" + name
}

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

type discoveryConfig struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	ValueTemplate     string `json:"value_template"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	PayloadOn         string `json:"payload_on,omitempty"`
	PayloadOff        string `json:"payload_off,omitempty"`
	Device            device `json:"device"`
}

type entity struct {
	component string
	objectID  string
	config    discoveryConfig
}

func (m *MQTT) entities() []entity {
	entities := []entity{
		{"sensor", "current_price", discoveryConfig{
			Name:              "Current price",
			StateTopic:        m.stateTopic("current"),
			ValueTemplate:     "{{ value_json.consumerPrice }}",
			UnitOfMeasurement: m.priceUnit,
		}},
		{"sensor", "current_tariff", discoveryConfig{
			Name:          "Current tariff",
			StateTopic:    m.stateTopic("current"),
			ValueTemplate: "{{ value_json.tariff }}",
		}},
		{"sensor", "next_cheap_start", discoveryConfig{
			Name:          "Next cheap period",
			StateTopic:    m.stateTopic("cheap"),
			ValueTemplate: "{{ value_json.nextRange.startTime if value_json.nextRange else None }}",
			DeviceClass:   "timestamp",
		}},
		{"sensor", "cheap_hours", discoveryConfig{
			Name:          "Cheap hours",
			StateTopic:    m.stateTopic("cheap"),
			ValueTemplate: "{{ value_json.result.analysisInfo.totalCheapHours }}",
		}},
		{"binary_sensor", "cheap_now", discoveryConfig{
			Name:          "Cheap now",
			StateTopic:    m.stateTopic("cheap"),
			ValueTemplate: "{{ 'ON' if value_json.cheapNow else 'OFF' }}",
			PayloadOn:     "ON",
			PayloadOff:    "OFF",
		}},
	}
	for i := range entities {
		entities[i].config.UniqueID = m.nodeID + "_" + entities[i].objectID
		entities[i].config.Device = device{
			Identifiers:  []string{m.nodeID},
			Name:         "Real Electricity Price",
			Manufacturer: "real-electricity-price",
		}
	}
	return entities
}

func (m *MQTT) publish(topic string, retained bool, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	token := m.client.Publish(topic, 1, retained, b)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("timed out publishing %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// announce publishes the discovery configs once per connection.
func (m *MQTT) announce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.announced {
		return nil
	}
	for _, e := range m.entities() {
		topic := fmt.Sprintf("%s/%s/%s/%s/config", m.discoveryPrefix, e.component, m.nodeID, e.objectID)
		if err := m.publish(topic, true, e.config); err != nil {
			return err
		}
	}
	m.announced = true
	log.Ctx(ctx).DebugContext(ctx, "published home assistant discovery", slog.String("prefix", m.discoveryPrefix))
	return nil
}

type currentState struct {
	types.CurrentPrice
	TodayAvailable    bool `json:"todayAvailable"`
	TomorrowAvailable bool `json:"tomorrowAvailable"`
}

// PublishPrices publishes the current price and the full window.
func (m *MQTT) PublishPrices(ctx context.Context, window types.PriceWindow, current types.CurrentPrice) error {
	if err := m.announce(ctx); err != nil {
		return err
	}
	state := currentState{
		CurrentPrice:      current,
		TodayAvailable:    window.Today.DataAvailable,
		TomorrowAvailable: window.Tomorrow.DataAvailable,
	}
	if err := m.publish(m.stateTopic("current"), true, state); err != nil {
		return err
	}
	return m.publish(m.stateTopic("prices"), true, window)
}

type cheapState struct {
	CheapNow    bool                      `json:"cheapNow"`
	ActiveRange *types.CheapRange         `json:"activeRange"`
	NextRange   *types.CheapRange         `json:"nextRange"`
	Result      types.CheapAnalysisResult `json:"result"`
}

// PublishCheap publishes the analysis with the range active at now and the
// next one.
func (m *MQTT) PublishCheap(ctx context.Context, result types.CheapAnalysisResult, now time.Time) error {
	if err := m.announce(ctx); err != nil {
		return err
	}
	state := cheapState{Result: result}
	if r, ok := result.ActiveRange(now); ok {
		state.CheapNow = true
		state.ActiveRange = &r
	}
	if r, ok := result.NextRange(now); ok {
		state.NextRange = &r
	}
	return m.publish(m.stateTopic("cheap"), true, state)
}
