package pgo

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing.
type MockToken struct {
	err       error
	completed bool
	mu        sync.RWMutex
}

func NewMockToken(err error) *MockToken {
	return &MockToken{
		err:       err,
		completed: true,
	}
}

func (t *MockToken) Wait() bool {
	return t.WaitTimeout(30 * time.Second)
}

func (t *MockToken) WaitTimeout(duration time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed
}

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *MockToken) Error() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// MockClient implements mqtt.Client for testing the measurement stream.
// It records subscriptions and lets tests inject inbound payloads with
// SimulateMessage; publishing is a no-op since the stream never
// publishes.
type MockClient struct {
	connected       bool
	connectError    error
	subscribeError  error
	messageHandlers map[string]mqtt.MessageHandler
	mu              sync.RWMutex
	onConnect       mqtt.OnConnectHandler
}

// NewMockClient creates a new mock MQTT client.
func NewMockClient() *MockClient {
	return &MockClient{
		messageHandlers: make(map[string]mqtt.MessageHandler),
	}
}

// SetConnected sets the connection state.
func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// SetOnConnect registers a callback fired after a successful Connect.
func (c *MockClient) SetOnConnect(handler mqtt.OnConnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = handler
}

// SetConnectError sets the error returned on Connect.
func (c *MockClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectError = err
}

// SetSubscribeError sets the error returned on Subscribe.
func (c *MockClient) SetSubscribeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeError = err
}

// SubscribedTopics returns the topics with registered handlers.
func (c *MockClient) SubscribedTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.messageHandlers))
	for topic := range c.messageHandlers {
		topics = append(topics, topic)
	}
	return topics
}

// SimulateMessage delivers a payload to the handler subscribed on topic.
func (c *MockClient) SimulateMessage(topic string, payload []byte) {
	c.mu.RLock()
	handler, ok := c.messageHandlers[topic]
	c.mu.RUnlock()

	if ok && handler != nil {
		handler(c, &mockMessage{topic: topic, payload: payload})
	}
}

// IsConnected returns the connection status.
func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsConnectionOpen returns whether the connection is open.
func (c *MockClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

// Connect simulates connecting to the broker.
func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	err := c.connectError
	c.mu.Unlock()

	if err == nil {
		c.mu.Lock()
		c.connected = true
		onConnect := c.onConnect
		c.mu.Unlock()

		if onConnect != nil {
			go onConnect(c)
		}
	}

	return NewMockToken(err)
}

// Disconnect simulates disconnecting from the broker.
func (c *MockClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// Publish is a no-op; the stream client only consumes.
func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return NewMockToken(nil)
}

// Subscribe records a topic handler.
func (c *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	if c.subscribeError != nil {
		return NewMockToken(c.subscribeError)
	}

	c.messageHandlers[topic] = callback
	return NewMockToken(nil)
}

// SubscribeMultiple records handlers for multiple topics.
func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	if c.subscribeError != nil {
		return NewMockToken(c.subscribeError)
	}

	for topic := range filters {
		c.messageHandlers[topic] = callback
	}
	return NewMockToken(nil)
}

// Unsubscribe removes topic handlers.
func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		delete(c.messageHandlers, topic)
	}
	return NewMockToken(nil)
}

// AddRoute adds a message handler for a topic.
func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandlers[topic] = callback
}

// OptionsReader returns the client options (not implemented for mock).
func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage implements mqtt.Message for testing.
type mockMessage struct {
	topic     string
	payload   []byte
	qos       byte
	retained  bool
	messageID uint16
	duplicate bool
}

func (m *mockMessage) Duplicate() bool   { return m.duplicate }
func (m *mockMessage) Qos() byte         { return m.qos }
func (m *mockMessage) Retained() bool    { return m.retained }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return m.messageID }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
