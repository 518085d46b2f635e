package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageEvictsOldest(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := NewConversation("+100", now)
	for i := 0; i < MessageLogRetention+5; i++ {
		conv.AppendMessage(LogEntry{ExternalID: fmt.Sprintf("m%d", i), Direction: DirectionInbound, Body: "x", Timestamp: now})
	}
	require.Len(t, conv.Messages, MessageLogRetention)
	assert.Equal(t, "m5", conv.Messages[0].ExternalID)
	assert.Equal(t, MessageLogRetention+5, conv.UnreadCount)
}

func TestMediaSinceCycle(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := NewConversation("+100", start)
	conv.AppendMessage(LogEntry{Direction: DirectionInbound, Kind: KindImage, MediaRef: "old", Timestamp: start})

	conv.BeginCycle(start.Add(time.Hour))
	conv.AppendMessage(LogEntry{Direction: DirectionInbound, Kind: KindVideo, MediaRef: "new", Timestamp: start.Add(time.Hour)})
	conv.AppendMessage(LogEntry{Direction: DirectionInbound, Kind: KindSticker, MediaRef: "sticker", Timestamp: start.Add(time.Hour)})
	conv.AppendMessage(LogEntry{Direction: DirectionInbound, Kind: KindAudio, Timestamp: start.Add(time.Hour)})

	media := conv.MediaSinceCycle()
	require.Len(t, media, 1)
	assert.Equal(t, "new", media[0].MediaRef)
	assert.Equal(t, StepAwaitingName, conv.Step)
}

func TestOutboundSettlement(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := NewConversation("+100", now)
	conv.QueueOutbound("hello", now)
	conv.QueueOutbound("bye", now)

	assert.True(t, conv.SettleOutbound("hello", "wamid.1"))
	assert.True(t, conv.SettleOutbound("bye", ""))
	assert.False(t, conv.SettleOutbound("hello", "wamid.2"))

	assert.Equal(t, DeliverySent, conv.Messages[0].Status)
	assert.Equal(t, DeliveryFailed, conv.Messages[1].Status)
	assert.True(t, conv.HasMessage("wamid.1"))
	assert.True(t, conv.SetDeliveryStatus("wamid.1", DeliveryRead))
	assert.Equal(t, DeliveryRead, conv.Messages[0].Status)
	assert.Zero(t, conv.UnreadCount)
}

func TestQueueInvariant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := NewConversation("+100", now)
	assert.True(t, conv.CheckQueueInvariant())

	conv.Step = StepQueued
	assert.False(t, conv.CheckQueueInvariant())
	conv.QueuedAt = &now
	assert.True(t, conv.CheckQueueInvariant())

	conv.Reset()
	assert.Equal(t, StepStart, conv.Step)
	assert.Nil(t, conv.QueuedAt)
	assert.True(t, conv.CheckQueueInvariant())
}
