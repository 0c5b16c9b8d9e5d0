// Package telemetry subscribes to the load-balancer metrics topic on an MQTT
// broker and feeds decoded samples into a loadmodel.Model. It is the only
// writer of that model; every strategy.Weighted.Pick call is a reader.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dashproxy/internal/loadmodel"
)

const (
	// Topic is the fixed metrics topic the ingest task subscribes to.
	Topic = "loadbalancer/metrics"

	qos       = 1 // at-least-once
	keepAlive = 10 * time.Second
	backoff   = 1 * time.Second
)

var errEmptyServerSocket = errors.New("telemetry: sample missing server_socket")

// Ingest is a long-lived background task that keeps an MQTT subscription to
// Topic alive for the life of the process, decoding incoming payloads into
// loadmodel.Sample updates.
type Ingest struct {
	brokerHost string
	brokerPort int
	model      *loadmodel.Model
	log        *slog.Logger
}

// NewIngest returns an Ingest targeting (brokerHost, brokerPort) that writes
// decoded samples into model.
func NewIngest(brokerHost string, brokerPort int, model *loadmodel.Model) *Ingest {
	return &Ingest{
		brokerHost: brokerHost,
		brokerPort: brokerPort,
		model:      model,
		log:        slog.Default(),
	}
}

// Run subscribes to Topic and blocks until ctx is cancelled. On any
// connect/subscribe failure it sleeps for one second and retries; it never
// returns on its own while ctx is live, per spec §4.2 ("the task never
// exits while the process runs").
func (in *Ingest) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := in.connectAndSubscribe(ctx); err != nil {
			in.log.Error("telemetry: broker connection failed, retrying", "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (in *Ingest) connectAndSubscribe(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", in.brokerHost, in.brokerPort)
	clientID := fmt.Sprintf("dashproxy-lb-%d", rand.Uint64())

	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	if token := client.Subscribe(Topic, qos, in.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: subscribe %q: %w", Topic, token.Error())
	}
	in.log.Info("telemetry: subscribed", "topic", Topic, "broker", broker)

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return err
	}
}

// handleMessage decodes one MQTT publish event and, on success, updates the
// load model. Malformed payloads and decode failures are silently dropped;
// non-publish broker events never reach this handler.
func (in *Ingest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	sample, err := decodeSample(msg.Payload())
	if err != nil {
		in.log.Debug("telemetry: dropped malformed sample", "error", err)
		return
	}

	in.model.Update(sample)
	in.log.Debug("telemetry: sample received",
		"server_socket", sample.ServerSocket,
		"memory_bytes", sample.MemoryBytes,
		"disk_bytes_per_sec", sample.DiskBytesSec,
		"lm", sample.LM,
		"ld", sample.LD,
		"timestamp_unix", sample.T,
	)
}
