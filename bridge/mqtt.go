package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/spimod/axispi/devfile"
)

type MQTTConfig struct {
	// Broker is the host:port of the MQTT broker.
	Broker   string
	ClientID string
	// Requests are read from CommandTopic and replies published to
	// ResultTopic.
	CommandTopic string
	ResultTopic  string
	// Timeout bounds dialing, connecting and subscribing.
	Timeout time.Duration
	// KeepAlive is announced to the broker, rounded up to whole seconds.
	// A ping is sent every half period and an unanswered ping ends the
	// session. Zero disables keep alive.
	KeepAlive time.Duration
	Logger    *slog.Logger
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:       "localhost:1883",
		ClientID:     "spimod",
		CommandTopic: "spimod/cmd",
		ResultTopic:  "spimod/result",
		Timeout:      5 * time.Second,
		KeepAlive:    60 * time.Second,
	}
}

// MQTT serves a device over a pair of MQTT topics.
type MQTT struct {
	dev    *devfile.Device
	cfg    MQTTConfig
	logger *slog.Logger

	pubFlags mqtt.PacketFlags
	pubVar   mqtt.VariablesPublish
}

func NewMQTT(dev *devfile.Device, cfg MQTTConfig) *MQTT {
	flags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	return &MQTT{
		dev:      dev,
		cfg:      cfg,
		logger:   cfg.Logger,
		pubFlags: flags,
		pubVar: mqtt.VariablesPublish{
			TopicName: []byte(cfg.ResultTopic),
		},
	}
}

// Serve connects to the broker and answers requests until ctx is done or the
// connection drops.
func (m *MQTT) Serve(ctx context.Context) error {
	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Broker)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reqs := make(chan string, 8)
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(_ mqtt.Header, vp mqtt.VariablesPublish, r io.Reader) error {
			// The client requires the payload to be consumed whole.
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			if len(payload) > maxLine {
				m.warn("mqtt:too-long", slog.Int("len", len(payload)))
				return nil
			}
			select {
			case reqs <- string(payload):
			default:
				m.warn("mqtt:dropped", slog.String("topic", string(vp.TopicName)))
			}
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(m.cfg.ClientID))
	varconn.KeepAlive = uint16((max(m.cfg.KeepAlive, 0) + time.Second - 1) / time.Second)
	conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	if err = client.StartConnect(conn, &varconn); err != nil {
		return err
	}
	for !client.IsConnected() {
		if err = client.HandleNext(); err != nil {
			return errors.Join(errors.New("bridge: mqtt connect"), err)
		}
	}
	err = client.StartSubscribe(mqtt.VariablesSubscribe{
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: []byte(m.cfg.CommandTopic), QoS: mqtt.QoS0},
		},
		PacketIdentifier: 1,
	})
	if err != nil {
		return err
	}
	for client.AwaitingSuback() {
		if err = client.HandleNext(); err != nil {
			return errors.Join(errors.New("bridge: mqtt subscribe"), err)
		}
	}
	conn.SetDeadline(time.Time{})
	m.info("mqtt:ready", slog.String("broker", m.cfg.Broker), slog.String("topic", m.cfg.CommandTopic))

	var ping <-chan time.Time
	if varconn.KeepAlive != 0 {
		ticker := time.NewTicker(time.Duration(varconn.KeepAlive) * time.Second / 2)
		defer ticker.Stop()
		ping = ticker.C
	}
	rxErr := make(chan error, 1)
	go func() {
		for {
			if err := client.HandleNext(); err != nil {
				rxErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-rxErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Join(errors.New("bridge: mqtt receive"), err)
		case <-ping:
			if client.AwaitingPingresp() {
				return errors.New("bridge: mqtt ping unanswered")
			}
			if err := client.StartPing(); err != nil {
				return errors.Join(errors.New("bridge: mqtt ping"), err)
			}
			m.debug("mqtt:ping")
		case req := <-reqs:
			reply := Exec(ctx, m.dev, req)
			// Unused on the wire at QoS0 but must never be zero.
			m.pubVar.PacketIdentifier++
			if m.pubVar.PacketIdentifier == 0 {
				m.pubVar.PacketIdentifier = 1
			}
			if err := client.PublishPayload(m.pubFlags, m.pubVar, []byte(reply)); err != nil {
				return err
			}
			m.debug("mqtt:request", slog.String("req", req), slog.String("reply", reply))
		}
	}
}

func (m *MQTT) info(msg string, attrs ...slog.Attr) { m.log(slog.LevelInfo, msg, attrs...) }

func (m *MQTT) warn(msg string, attrs ...slog.Attr) { m.log(slog.LevelWarn, msg, attrs...) }

func (m *MQTT) debug(msg string, attrs ...slog.Attr) { m.log(slog.LevelDebug, msg, attrs...) }

func (m *MQTT) log(level slog.Level, msg string, attrs ...slog.Attr) {
	if m.logger != nil {
		m.logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
