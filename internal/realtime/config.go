package realtime

import "time"

// Config controls the broker connection.
type Config struct {
	// BrokerURL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	BrokerURL string
	// Host is sent in the STOMP CONNECT frame; defaults to the URL host.
	Host string
	// ReconnectDelay is the fixed wait between connection attempts. Zero disables reconnecting.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed attempts after the first. Zero is unbounded.
	MaxReconnectAttempts int
	HeartbeatOutgoing    time.Duration
	HeartbeatIncoming    time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	// SendBuffer is the number of outbound frames queued before writers block.
	SendBuffer int
}

// DefaultConfig mirrors the browser client's transport settings.
func DefaultConfig(brokerURL string) Config {
	return Config{
		BrokerURL:         brokerURL,
		ReconnectDelay:    5 * time.Second,
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBuffer:        256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.BrokerURL)
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.HeartbeatOutgoing < 0 {
		c.HeartbeatOutgoing = 0
	}
	if c.HeartbeatIncoming < 0 {
		c.HeartbeatIncoming = 0
	}
	return c
}
