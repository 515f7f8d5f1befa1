// Package mqttpub publishes driver events to an MQTT broker as JSON
// documents, one topic per event kind.
package mqttpub

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	mqtt "github.com/soypat/natiu-mqtt"
	"go.uber.org/zap"

	"github.com/soypat/winc"
)

var errNotConnected = errors.New("mqttpub: not connected")

// Config holds MQTT publisher configuration.
type Config struct {
	// Broker is the host:port of the broker. Empty disables publishing.
	Broker string `mapstructure:"broker"`
	// ClientID defaults to "winc-" followed by a random UUID.
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	Retain      bool          `mapstructure:"retain"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the publisher defaults.
func DefaultConfig() Config {
	return Config{
		TopicPrefix: "winc",
		Timeout:     10 * time.Second,
	}
}

// Publisher forwards events to a broker. Publish is safe for concurrent use.
type Publisher struct {
	cfg    Config
	log    *zap.Logger
	mu     sync.Mutex
	conn   net.Conn
	client *mqtt.Client
	pubID  uint16
}

// New returns a disconnected publisher.
func New(cfg Config, log *zap.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "winc-" + uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{cfg: cfg, log: log}
}

// ClientID returns the MQTT client identifier.
func (p *Publisher) ClientID() string { return p.cfg.ClientID }

// Connect dials the broker and completes the MQTT handshake.
func (p *Publisher) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(p.cfg.ClientID))
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := client.Connect(ctx, conn, &varconn); err != nil {
		conn.Close()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	conn.SetDeadline(time.Time{})
	p.mu.Lock()
	p.conn, p.client = conn, client
	p.mu.Unlock()
	p.log.Info("mqtt connected", zap.String("broker", p.cfg.Broker), zap.String("client_id", p.cfg.ClientID))
	return nil
}

// Publish sends ev to its topic. Events without a topic are ignored.
func (p *Publisher) Publish(ev winc.Event) error {
	topic, payload, err := Encode(p.cfg.TopicPrefix, ev)
	if err != nil || topic == "" {
		return err
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, p.cfg.Retain)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || !p.client.IsConnected() {
		return errNotConnected
	}
	p.pubID++
	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.Timeout))
	return p.client.PublishPayload(flags, mqtt.VariablesPublish{
		TopicName:        []byte(topic),
		PacketIdentifier: p.pubID,
	}, payload)
}

// Run publishes events until the channel is closed or ctx is done. Publish
// failures are logged and the event is dropped.
func (p *Publisher) Run(ctx context.Context, events <-chan winc.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.Publish(ev); err != nil {
				p.log.Warn("mqtt publish failed", zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
			}
		}
	}
}

// Close drops the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.client = nil, nil
	return err
}

type linkDoc struct {
	Handle string `json:"handle"`
	Role   string `json:"role"`
	State  string `json:"state"`
	Peer   string `json:"peer"`
	Error  string `json:"error,omitempty"`
}

type vendorIEDoc struct {
	Frame  uint8  `json:"frame"`
	Source string `json:"source"`
	OUI    string `json:"oui"`
	Type   uint8  `json:"type"`
	Data   string `json:"data"`
}

// Encode returns the topic and JSON payload for ev. An empty topic means the
// event is not published.
func Encode(prefix string, ev winc.Event) (topic string, payload []byte, err error) {
	var doc any
	switch ev := ev.(type) {
	case winc.ConnStateEvent:
		d := linkDoc{
			Handle: ev.Handle.String(),
			Role:   ev.Role.String(),
			State:  ev.State.String(),
			Peer:   net.HardwareAddr(ev.Peer[:]).String(),
		}
		if ev.Err != nil {
			d.Error = ev.Err.Error()
		}
		topic, doc = "link/"+ev.Role.String(), d
	case winc.APStateEvent:
		topic, doc = "ap/state", map[string]string{"state": ev.State.String()}
	case winc.ScanDoneEvent:
		topic, doc = "scan/done", map[string]int{"total": ev.Total}
	case winc.RSSIEvent:
		topic, doc = "link/rssi", map[string]any{"handle": ev.Handle.String(), "rssi": ev.RSSI}
	case winc.RegDomainEvent:
		topic, doc = "regdomain", map[string]any{"name": ev.RegDomain.Name, "channel_mask": ev.RegDomain.ChannelMask}
	case winc.VendorIEEvent:
		topic, doc = "vendorie", vendorIEDoc{
			Frame:  uint8(ev.Frame),
			Source: net.HardwareAddr(ev.Source[:]).String(),
			OUI:    hex.EncodeToString(ev.OUI[:]),
			Type:   ev.Type,
			Data:   hex.EncodeToString(ev.Data),
		}
	case winc.PowerSaveEvent:
		topic, doc = "powersave", map[string]bool{"asleep": ev.Asleep}
	case winc.RequestErrorEvent:
		topic, doc = "error/request", map[string]any{"id": ev.ID.String(), "code": ev.Code}
	case winc.DiagnosticEvent:
		d := map[string]string{"status": ev.Status.String()}
		if ev.Err != nil {
			d["error"] = ev.Err.Error()
		}
		topic, doc = "error/diagnostic", d
	default:
		// Per entry scan progress is too chatty for telemetry.
		return "", nil, nil
	}
	payload, err = json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}
	return prefix + "/" + topic, payload, nil
}
