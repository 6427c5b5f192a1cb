package stream

import (
	"time"

	"github.com/AnishVcode/senior-launcher/common/config"

	"github.com/nats-io/nats.go"
)

// Connect 连接 NATS（无限重连）
func Connect(cfg *config.NATSConfig) (*nats.Conn, error) {
	name := cfg.Name
	if name == "" {
		name = "fall-monitor"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 500 * time.Millisecond
	}

	return nats.Connect(
		cfg.URL,
		nats.Name(name),
		nats.Timeout(timeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
	)
}
