package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for every connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectBackoff between connection attempts. Default is 3s.
	ReconnectBackoff time.Duration

	// SessionExpiry in seconds; 0 ends the session when the connection closes.
	SessionExpiry uint32

	CleanStart         bool
	InsecureSkipVerify bool

	// Birth is published every time the connection comes up.
	Birth *Message

	// Will is published by the broker if the client vanishes, and by Disconnect on a clean exit.
	Will *Message
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 3 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("broker url %q must have a scheme and host", c.BrokerURL)
	}

	return errors.Join(validateMessage("birth", c.Birth), validateMessage("will", c.Will))
}

func validateMessage(kind string, m *Message) error {
	if m == nil {
		return nil
	}
	if m.Topic == "" {
		return fmt.Errorf("%s message needs a topic", kind)
	}
	if m.QoS > 2 {
		return fmt.Errorf("invalid %s qos %d", kind, m.QoS)
	}
	return nil
}
