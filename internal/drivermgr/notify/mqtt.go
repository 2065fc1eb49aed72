package notify

import (
	"context"
	"encoding/json"

	"github.com/autopeer-io/drivermgr/pkg/log"
	pkgmqtt "github.com/autopeer-io/drivermgr/pkg/mqtt"
	"github.com/autopeer-io/drivermgr/pkg/mqtt/topic"
)

// MQTTForwarder republishes notifications as retained JSON messages on
// {root}/driver/state/{vehicle}, so late MQTT subscribers see the last state of every vehicle.
type MQTTForwarder struct {
	client pkgmqtt.Publisher
	topics *topic.Builder
	logger log.Logger
}

func NewMQTTForwarder(client pkgmqtt.Publisher, builder *topic.Builder) *MQTTForwarder {
	return &MQTTForwarder{
		client: client,
		topics: builder,
		logger: log.WithName("mqtt-forwarder"),
	}
}

// Forward publishes one notification.
func (f *MQTTForwarder) Forward(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return f.client.Publish(ctx, pkgmqtt.Retained(f.topics.DriverState(n.Vehicle), payload))
}

// Run forwards every notification of sub until ctx ends or the channel is closed,
// then closes sub. Publish failures are logged and do not stop forwarding.
func (f *MQTTForwarder) Run(ctx context.Context, sub *Subscription) error {
	defer sub.Close()

	f.logger.Info("Forwarding driver state notifications to MQTT", "topic", f.topics.DriverStateWildcard())
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := f.Forward(ctx, n); err != nil {
				f.logger.Error(err, "Failed to forward notification", "vehicle", n.Vehicle, "seq", n.Seq)
			}
		}
	}
}
