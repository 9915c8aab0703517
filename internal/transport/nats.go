// Package transport bridges the engine to a real delivery network over NATS:
// outbound messages are published, while inbound peer messages and receipt
// acks drive the same engine operations the local simulator would.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

const (
	subjectOutbound         = "chat.messages.out"
	subjectInbound          = "chat.messages.in"
	subjectReceiptDelivered = "chat.receipts.delivered"
	subjectReceiptRead      = "chat.receipts.read"
)

// Config holds NATS connection configuration.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// receipt is the wire form of a delivery or read ack.
type receipt struct {
	MessageID string `json:"message_id"`
}

// Agent is the NATS-backed delivery agent.
type Agent struct {
	conn   *nats.Conn
	engine *engine.Engine
	logger *logger.Logger
	subs   []*nats.Subscription
}

// Connect establishes the NATS connection and wires the inbound
// subscriptions.
func Connect(cfg Config, eng *engine.Engine, log *logger.Logger) (*Agent, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	a := &Agent{conn: nc, engine: eng, logger: log}
	if err := a.subscribe(); err != nil {
		nc.Close()
		return nil, err
	}
	return a, nil
}

func (a *Agent) subscribe() error {
	inbound, err := a.conn.Subscribe(subjectInbound, a.handleInbound)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectInbound, err)
	}
	delivered, err := a.conn.Subscribe(subjectReceiptDelivered, a.handleReceipt(a.engine.MarkDelivered, "delivered"))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectReceiptDelivered, err)
	}
	read, err := a.conn.Subscribe(subjectReceiptRead, a.handleReceipt(a.engine.MarkRead, "read"))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectReceiptRead, err)
	}
	a.subs = []*nats.Subscription{inbound, delivered, read}
	return nil
}

// MessageSent publishes an outbound message keyed by conversation.
func (a *Agent) MessageSent(msg model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("failed to encode outbound message", zap.Error(err))
		return
	}
	subject := subjectOutbound + "." + strings.ReplaceAll(msg.ConversationKey, ".", "-")
	if err := a.conn.Publish(subject, data); err != nil {
		a.logger.Error("failed to publish outbound message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (a *Agent) handleInbound(m *nats.Msg) {
	var msg model.Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		a.logger.Warn("dropping malformed inbound message", zap.Error(err))
		return
	}
	if _, err := a.engine.Append(msg); err != nil {
		if apperr.IsCode(err, apperr.CodeInvalidState) {
			return // no active session
		}
		a.logger.Warn("failed to append inbound message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (a *Agent) handleReceipt(apply func(string) error, kind string) nats.MsgHandler {
	return func(m *nats.Msg) {
		var r receipt
		if err := json.Unmarshal(m.Data, &r); err != nil {
			a.logger.Warn("dropping malformed receipt", zap.String("kind", kind), zap.Error(err))
			return
		}
		if err := apply(r.MessageID); err != nil {
			switch apperr.CodeOf(err) {
			case apperr.CodeInvalidState, apperr.CodeNotFound:
				return // session gone or receipt for an unknown message
			}
			a.logger.Warn("failed to apply receipt",
				zap.String("kind", kind),
				zap.String("message_id", r.MessageID),
				zap.Error(err),
			)
		}
	}
}

// IsConnected reports connection health.
func (a *Agent) IsConnected() bool {
	return a.conn != nil && a.conn.IsConnected()
}

// Shutdown drains the subscriptions and closes the connection.
func (a *Agent) Shutdown() {
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
