package pgo

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MeasurementHandler is called for each decoded candidate measurement.
// robotID is the configured id of the publishing robot; on decode failure
// msg is nil and err describes the problem, with the raw payload provided
// for diagnostics.
type MeasurementHandler func(robotID string, rawPayload []byte, msg *MeasurementMessage, err error)

// StreamClient manages the MQTT connection and per-robot subscriptions
// that deliver candidate measurements. It is a transport collaborator
// only: it never touches the filter directly, it hands decoded messages
// to the handler, which is responsible for serializing access to the
// filter.
type StreamClient struct {
	client      mqtt.Client
	config      *Config
	handler     MeasurementHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitStream initializes the MQTT stream client. If neither the
// MQTT_BROKER env var nor config.MQTT.Broker is set, streaming is
// disabled and (nil, nil) is returned.
func InitStream(config *Config, handler MeasurementHandler) (*StreamClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Robots) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no robot configuration provided")
	}

	c := &StreamClient{
		config:  config,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "posemesh"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // preserve subscriptions on reconnect
	// Measurements must reach the filter in publish order; concurrent
	// dispatch would reorder odometry ahead of its prior.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()

	return c, nil
}

// connectWithRetry attempts the initial broker connection with
// exponential backoff.
func (c *StreamClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every configured robot topic.
func (c *StreamClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to robot topics...")
	c.setConnected(true)

	for _, robot := range c.config.Robots {
		if robot.Topic == "" {
			log.Printf("Warning: robot %s has no topic configured", robot.ID)
			continue
		}

		log.Printf("Subscribing to %s for robot %s", robot.Topic, robot.ID)
		token := client.Subscribe(robot.Topic, 1, c.createMessageHandler(robot.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", robot.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", robot.Topic)
		}
	}
}

// onConnectionLost is typically transient; auto-reconnect is enabled.
func (c *StreamClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *StreamClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createMessageHandler decodes payloads for a specific robot's topic and
// forwards them to the measurement handler.
func (c *StreamClient) createMessageHandler(robotID string) mqtt.MessageHandler {
	return func(client mqtt.Client, m mqtt.Message) {
		payload := m.Payload()

		msg, err := DecodeMeasurement(payload)
		if err != nil {
			log.Printf("Error decoding measurement for %s: %v", robotID, err)
			if c.handler != nil {
				c.handler(robotID, payload, nil, err)
			}
			return
		}

		if c.handler != nil {
			c.handler(robotID, payload, msg, nil)
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *StreamClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection.
func (c *StreamClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// newStreamClientWithMock creates a StreamClient with a provided
// mqtt.Client, for tests.
func newStreamClientWithMock(client mqtt.Client, config *Config, handler MeasurementHandler) *StreamClient {
	return &StreamClient{
		client:  client,
		config:  config,
		handler: handler,
	}
}
