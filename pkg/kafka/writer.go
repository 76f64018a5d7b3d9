package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

var errNoBrokers = errors.New("kafka brokers are required")

// messageWriter is the subset of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer publishes outbox messages to Kafka topics. Topics are chosen per message.
type Writer struct {
	writer  messageWriter
	brokers []string
	dialer  *kafka.Dialer
}

// NewWriter builds a topic-less writer, enabling SASL/PLAIN and TLS when credentials are set.
func NewWriter(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Writer, error) {
	brokers := ParseBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}

	tlsConfig, err := tlsConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	transport := &kafka.Transport{TLS: tlsConfig}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, TLS: tlsConfig}
	if cfg.Username != "" && cfg.Password != "" {
		mechanism := plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
		transport.SASL = mechanism
		dialer.SASLMechanism = mechanism
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		Transport:              transport,
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "brokers", strings.Join(brokers, ",")), "kafka writer initialized")
	}
	return &Writer{writer: w, brokers: brokers, dialer: dialer}, nil
}

func tlsConfigFor(cfg config.KafkaConfig) (*tls.Config, error) {
	sasl := cfg.Username != "" && cfg.Password != ""
	if !sasl && cfg.CACert == "" {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, errors.New("kafka ca certificate could not be parsed")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Publish writes one message. The key keeps events for one aggregate on one partition.
func (w *Writer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if w == nil || w.writer == nil {
		return errors.New("kafka writer not initialized")
	}
	if strings.TrimSpace(topic) == "" {
		return errors.New("kafka topic is required")
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return w.writer.WriteMessages(ctx, msg)
}

// Ping dials the first reachable broker.
func (w *Writer) Ping(ctx context.Context) error {
	if w == nil || len(w.brokers) == 0 {
		return errNoBrokers
	}
	dialer := w.dialer
	if dialer == nil {
		dialer = &kafka.Dialer{Timeout: 10 * time.Second}
	}
	var lastErr error
	for _, broker := range w.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return lastErr
}

func (w *Writer) Close() error {
	if w == nil || w.writer == nil {
		return nil
	}
	return w.writer.Close()
}

// ParseBrokers trims entries and splits comma separated values.
func ParseBrokers(raw []string) []string {
	out := []string{}
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
