package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// MQTTType is the broker-backed node type, grounded on lib/nodes/mqtt.cpp
// (one client per node) and the teacher's emitter/mqtt.go + control/handler.go
// connect/publish/subscribe idiom: auto-reconnect client options, QoS
// selectable per node, OnConnectionLost just logs and lets paho reconnect.
// paho.mqtt.golang already runs its own per-client network loop, so no
// process-wide broker goroutine is needed; the shared resource that does
// need protecting is the per-node publish call, guarded below by mqttState.mu.
type MQTTType struct{}

func init() { Register(&MQTTType{}) }

func (*MQTTType) Name() string { return "mqtt" }

type mqttState struct {
	mu sync.Mutex

	broker    string
	publishTo string
	subscribe string
	qos       byte

	client mqtt.Client

	incoming chan []byte
	woken    chan struct{}
}

func (*MQTTType) Instantiate(name string, config map[string]interface{}) (*Node, error) {
	st := &mqttState{qos: 0, incoming: make(chan []byte, 64), woken: make(chan struct{}, 1)}

	broker, _ := config["broker"].(string)
	if broker == "" {
		return nil, fmt.Errorf("mqtt node %s: broker required", name)
	}
	st.broker = broker

	st.publishTo, _ = config["publish"].(string)
	st.subscribe, _ = config["subscribe"].(string)
	if st.publishTo == "" && st.subscribe == "" {
		return nil, fmt.Errorf("mqtt node %s: at least one of publish/subscribe required", name)
	}
	if v, ok := config["qos"].(int); ok {
		st.qos = byte(v)
	}

	return NewNode(name, &MQTTType{}, st), nil
}

func (*MQTTType) Start(_ context.Context, n *Node) error {
	st := n.State.(*mqttState)
	st.mu.Lock()
	defer st.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(st.broker)
	opts.SetClientID(fmt.Sprintf("villasnode-%s", n.Name()))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "node", n.Name(), "broker", st.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"node", n.Name(), "error", err, "max_retry_interval", "30s")
	}

	st.client = mqtt.NewClient(opts)

	token := st.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt node %s: connection timeout", n.Name())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt node %s: connection failed: %w", n.Name(), err)
	}

	if st.subscribe != "" {
		handler := func(_ mqtt.Client, msg mqtt.Message) {
			payload := msg.Payload()
			select {
			case st.incoming <- payload:
			default:
				slog.Warn("mqtt inbound queue full, dropping message", "node", n.Name())
			}
		}
		subToken := st.client.Subscribe(st.subscribe, st.qos, handler)
		if !subToken.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("mqtt node %s: subscribe timeout", n.Name())
		}
		if err := subToken.Error(); err != nil {
			return fmt.Errorf("mqtt node %s: subscribe failed: %w", n.Name(), err)
		}
	}
	return nil
}

func (*MQTTType) Stop(n *Node) error {
	st := n.State.(*mqttState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.client != nil && st.client.IsConnected() {
		if st.subscribe != "" {
			st.client.Unsubscribe(st.subscribe).Wait()
		}
		st.client.Disconnect(250)
	}
	return nil
}

// Wake unblocks a pending Read by signalling the node's woken channel, so the
// path's receive loop can observe ctx cancellation promptly.
func (*MQTTType) Wake(n *Node) error {
	st := n.State.(*mqttState)
	select {
	case st.woken <- struct{}{}:
	default:
	}
	return nil
}

// wirePayload is the JSON envelope exchanged over MQTT: a sequence number
// plus a flat vector of float64 values, mirroring the minimal shape needed
// to round-trip a Sample without dragging in the full signal metadata.
type wirePayload struct {
	Sequence uint64    `json:"sequence"`
	Values   []float64 `json:"values"`
}

func (*MQTTType) Read(ctx context.Context, n *Node, out []*sample.Sample, count int) (int, error) {
	st := n.State.(*mqttState)

	read := 0
	for read < count && read < len(out) {
		select {
		case <-ctx.Done():
			return read, ctx.Err()
		case <-st.woken:
			return read, ctx.Err()
		case payload := <-st.incoming:
			var w wirePayload
			if err := json.Unmarshal(payload, &w); err != nil {
				slog.Warn("mqtt node: dropping malformed payload", "node", n.Name(), "error", err)
				continue
			}
			s := out[read]
			s.Sequence = w.Sequence
			s.Length = len(w.Values)
			if s.Length > s.Capacity() {
				s.Length = s.Capacity()
			}
			for i := 0; i < s.Length; i++ {
				s.Values[i] = sample.FloatValue(w.Values[i])
			}
			read++
		}
	}
	return read, nil
}

func (*MQTTType) Write(_ context.Context, n *Node, in []*sample.Sample, count int) (int, error) {
	st := n.State.(*mqttState)
	st.mu.Lock()
	defer st.mu.Unlock()
	client := st.client
	topic := st.publishTo
	qos := st.qos

	if client == nil || !client.IsConnected() {
		return 0, fmt.Errorf("mqtt node %s: not connected", n.Name())
	}

	written := 0
	for i := 0; i < count && i < len(in); i++ {
		s := in[i]
		w := wirePayload{Sequence: s.Sequence, Values: make([]float64, s.Length)}
		for j := 0; j < s.Length; j++ {
			w.Values[j] = valueAsFloat(s.Values[j])
		}
		payload, err := json.Marshal(w)
		if err != nil {
			return written, fmt.Errorf("mqtt node %s: marshal: %w", n.Name(), err)
		}

		token := client.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(2 * time.Second) {
			return written, fmt.Errorf("mqtt node %s: publish timeout", n.Name())
		}
		if err := token.Error(); err != nil {
			return written, fmt.Errorf("mqtt node %s: publish failed: %w", n.Name(), err)
		}
		written++
	}
	return written, nil
}

func valueAsFloat(v sample.Value) float64 {
	switch v.Kind {
	case sample.KindFloat:
		return v.Float
	case sample.KindInt:
		return float64(v.Int)
	case sample.KindBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return real(v.Complex)
	}
}
