package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/dailyreel/pkg/events"
)

// partitionKey keeps all events of a run on one partition.
func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.RunIDMetadataKey), nil
}
