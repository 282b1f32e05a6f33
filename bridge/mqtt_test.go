package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

// testBroker speaks just enough MQTT to accept one client session.
type testBroker struct {
	t    *testing.T
	conn net.Conn
	tx   mqtt.Tx
	dec  mqtt.DecoderNoAlloc
}

// startMQTT runs Serve against a local listener and accepts its connection.
func startMQTT(t *testing.T, cfg MQTTConfig) (*testBroker, <-chan error, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	cfg.Broker = ln.Addr().String()
	m := NewMQTT(newDevice(t), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errc := make(chan error, 1)
	go func() { errc <- m.Serve(ctx) }()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	b := &testBroker{t: t, conn: conn, dec: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 512)}}
	b.tx.SetTxTransport(conn)
	return b, errc, cancel
}

func (b *testBroker) next() (mqtt.Header, *bytes.Reader) {
	b.t.Helper()
	hdr, _, err := mqtt.DecodeHeader(b.conn)
	if err != nil {
		b.t.Fatal("broker read:", err)
	}
	body := make([]byte, hdr.RemainingLength)
	if _, err = io.ReadFull(b.conn, body); err != nil {
		b.t.Fatal("broker read:", err)
	}
	return hdr, bytes.NewReader(body)
}

func (b *testBroker) expect(pt mqtt.PacketType) (mqtt.Header, *bytes.Reader) {
	b.t.Helper()
	hdr, body := b.next()
	if hdr.Type() != pt {
		b.t.Fatalf("want %s, got %s", pt, hdr.Type())
	}
	return hdr, body
}

// accept completes the connect and subscribe exchange and returns the
// announced keep alive in seconds.
func (b *testBroker) accept(topic string) uint16 {
	b.t.Helper()
	_, body := b.expect(mqtt.PacketConnect)
	vc, _, err := b.dec.DecodeConnect(body)
	if err != nil {
		b.t.Fatal(err)
	}
	keepAlive := vc.KeepAlive
	if err = b.tx.WriteConnack(mqtt.VariablesConnack{}); err != nil {
		b.t.Fatal(err)
	}
	hdr, body := b.expect(mqtt.PacketSubscribe)
	vs, _, err := b.dec.DecodeSubscribe(body, hdr.RemainingLength)
	if err != nil {
		b.t.Fatal(err)
	}
	if len(vs.TopicFilters) != 1 || string(vs.TopicFilters[0].TopicFilter) != topic {
		b.t.Fatalf("unexpected subscription %+v", vs.TopicFilters)
	}
	err = b.tx.WriteSuback(mqtt.VariablesSuback{
		PacketIdentifier: vs.PacketIdentifier,
		ReturnCodes:      []mqtt.QoSLevel{mqtt.QoS0},
	})
	if err != nil {
		b.t.Fatal(err)
	}
	return keepAlive
}

func (b *testBroker) publish(topic, payload string) {
	b.t.Helper()
	flags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	hdr, err := mqtt.NewHeader(mqtt.PacketPublish, flags, 0)
	if err != nil {
		b.t.Fatal(err)
	}
	err = b.tx.WritePublishPayload(hdr, mqtt.VariablesPublish{TopicName: []byte(topic)}, []byte(payload))
	if err != nil {
		b.t.Fatal(err)
	}
}

func TestMQTTServe(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.KeepAlive = time.Second
	b, errc, cancel := startMQTT(t, cfg)
	if ka := b.accept(cfg.CommandTopic); ka != 1 {
		t.Errorf("keep alive: want 1s, got %ds", ka)
	}
	b.publish(cfg.CommandTopic, "w 05 11223344")
	b.publish(cfg.CommandTopic, "r 05")

	var replies []string
	pings := 0
	for len(replies) < 2 || pings == 0 {
		hdr, body := b.next()
		switch hdr.Type() {
		case mqtt.PacketPingreq:
			pings++
			if err := b.tx.WriteSimple(mqtt.PacketPingresp); err != nil {
				t.Fatal(err)
			}
		case mqtt.PacketPublish:
			vp, _, err := b.dec.DecodePublish(body, hdr.Flags().QoS())
			if err != nil {
				t.Fatal(err)
			}
			if string(vp.TopicName) != cfg.ResultTopic {
				t.Errorf("reply on topic %q", vp.TopicName)
			}
			payload, _ := io.ReadAll(body)
			replies = append(replies, string(payload))
		default:
			t.Fatal("unexpected packet", hdr.Type())
		}
	}
	if want := []string{"ok 770511223344", "ok 11223344"}; strings.Join(replies, ",") != strings.Join(want, ",") {
		t.Errorf("want replies %q, got %q", want, replies)
	}

	// Answered pings keep the session open.
	select {
	case err := <-errc:
		t.Fatal("serve returned:", err)
	default:
	}
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Error("want context.Canceled, got", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestMQTTUnansweredPing(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.KeepAlive = time.Second
	b, errc, _ := startMQTT(t, cfg)
	b.accept(cfg.CommandTopic)
	b.expect(mqtt.PacketPingreq)
	select {
	case err := <-errc:
		if err == nil || !strings.Contains(err.Error(), "ping unanswered") {
			t.Error("want ping error, got", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve kept a dead session")
	}
}

func TestMQTTKeepAliveDisabled(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.KeepAlive = 0
	b, _, _ := startMQTT(t, cfg)
	if ka := b.accept(cfg.CommandTopic); ka != 0 {
		t.Errorf("keep alive: want 0, got %d", ka)
	}
}
