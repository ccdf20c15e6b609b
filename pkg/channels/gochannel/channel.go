// Package gochannel provides the in-process session update channel.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const defaultBuffer = 256

// CreateChannel returns one GoChannel acting as both publisher and subscriber.
// Session updates are snapshots, so a slow subscriber never blocks the run that publishes them.
func CreateChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            defaultBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}
