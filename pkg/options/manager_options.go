package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ManagerOptions)(nil)

// ManagerOptions configures the attachment manager and its notification channel.
type ManagerOptions struct {
	// BatchConcurrency bounds how many entries of one batch are processed at once.
	BatchConcurrency int `json:"batch-concurrency" mapstructure:"batch-concurrency"`

	// NotificationBuffer is the per-subscriber buffer of the notification channel.
	NotificationBuffer int `json:"notification-buffer" mapstructure:"notification-buffer"`

	// DropSlowSubscribers drops notifications for subscribers whose buffer is full
	// instead of blocking the publisher.
	DropSlowSubscribers bool `json:"drop-slow-subscribers" mapstructure:"drop-slow-subscribers"`

	// ForwardToMQTT republishes every notification to the MQTT broker.
	ForwardToMQTT bool `json:"forward-to-mqtt" mapstructure:"forward-to-mqtt"`

	// AutoAttach binds the first supporting factory to every vehicle at startup.
	AutoAttach bool `json:"auto-attach" mapstructure:"auto-attach"`

	// AutoEnable enables every adapter bound by AutoAttach.
	AutoEnable bool `json:"auto-enable" mapstructure:"auto-enable"`
}

// NewManagerOptions creates a ManagerOptions object with default parameters.
func NewManagerOptions() *ManagerOptions {
	return &ManagerOptions{
		BatchConcurrency:   4,
		NotificationBuffer: 64,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ManagerOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errors []error

	if o.BatchConcurrency < 1 {
		errors = append(errors, fmt.Errorf("--manager.batch-concurrency must be at least 1"))
	}
	if o.NotificationBuffer < 0 {
		errors = append(errors, fmt.Errorf("--manager.notification-buffer must not be negative"))
	}
	if o.AutoEnable && !o.AutoAttach {
		errors = append(errors, fmt.Errorf("--manager.auto-enable requires --manager.auto-attach"))
	}

	return errors
}

// AddFlags adds flags for ManagerOptions to the specified FlagSet.
func (o *ManagerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.BatchConcurrency, "manager.batch-concurrency", o.BatchConcurrency, "Number of vehicles of one batch request processed concurrently.")
	fs.IntVar(&o.NotificationBuffer, "manager.notification-buffer", o.NotificationBuffer, "Buffered notifications per subscriber.")
	fs.BoolVar(&o.DropSlowSubscribers, "manager.drop-slow-subscribers", o.DropSlowSubscribers, "Drop notifications for subscribers that fall behind instead of blocking.")
	fs.BoolVar(&o.ForwardToMQTT, "manager.forward-to-mqtt", o.ForwardToMQTT, "Republish driver state changes to the MQTT broker.")
	fs.BoolVar(&o.AutoAttach, "manager.auto-attach", o.AutoAttach, "Attach the first supporting driver to every vehicle at startup.")
	fs.BoolVar(&o.AutoEnable, "manager.auto-enable", o.AutoEnable, "Enable drivers attached at startup.")
}
