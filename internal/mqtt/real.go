package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/gate-opener/internal/logger"
	"github.com/sweeney/gate-opener/internal/logic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// Commander receives OPEN/CLOSE commands from the set topic.
	// Nil disables the subscription.
	Commander Commander

	Log *logger.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	commander Commander
	log       *logger.Logger

	mu          sync.Mutex
	buffer      *ringBuffer
	connectedAt time.Time
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It does not wait for the broker.
func NewRealPublisher(opts Options) *RealPublisher {
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}

	p := &RealPublisher{
		topics:    opts.Topics,
		commander: opts.Commander,
		log:       opts.Log,
		buffer:    newRingBuffer(opts.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOrderMatters(false).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	paho.ERROR = pahoLogger{opts.Log.Errorf}
	paho.CRITICAL = pahoLogger{opts.Log.Errorf}
	paho.WARN = pahoLogger{opts.Log.Warnf}
	if opts.Log.Enabled(logger.LevelDebug) {
		paho.DEBUG = pahoLogger{opts.Log.Debugf}
	}

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

func (p *RealPublisher) handleConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := !p.connectedAt.IsZero()
	p.connectedAt = time.Now()
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	p.log.Infof("connected to broker")

	if p.commander != nil {
		token := c.Subscribe(p.topics.Set, 1, p.handleCommand)
		switch {
		case !token.WaitTimeout(5 * time.Second):
			p.log.Errorf("subscribe %s: timeout", p.topics.Set)
		case token.Error() != nil:
			p.log.Errorf("subscribe %s: %v", p.topics.Set, token.Error())
		default:
			p.log.Infof("listening for commands on %s", p.topics.Set)
		}
	}

	if len(pending) > 0 {
		p.log.Infof("replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Errorf("replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			p.log.Errorf("publish reconnected event: %v", err)
		}
	}
}

func (p *RealPublisher) handleConnectionLost(_ paho.Client, err error) {
	p.log.Warnf("connection to broker lost: %v", err)
}

func (p *RealPublisher) handleCommand(_ paho.Client, m paho.Message) {
	p.log.Infof("command received on %s: %q", m.Topic(), m.Payload())
	if err := HandleCommand(p.commander, m.Payload()); err != nil {
		p.log.Warnf("command %q: %v", m.Payload(), err)
	}
}

// Publish sends a gate event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.buffer.push(m) {
			p.log.Warnf("buffer full (%d messages), dropping oldest", p.buffer.capacity)
		}
		p.mu.Unlock()
		p.log.Debugf("not connected, buffered message for %s", m.topic)
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// pahoLogger routes the client library's diagnostics to our logger.
type pahoLogger struct {
	logf func(format string, v ...interface{})
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logf("%s", fmt.Sprintln(v...))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logf(format, v...)
}
