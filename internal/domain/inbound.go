package domain

import "time"

// MessageKind is the type of an inbound channel message.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindButton      MessageKind = "button"
	KindInteractive MessageKind = "interactive"
	KindImage       MessageKind = "image"
	KindAudio       MessageKind = "audio"
	KindVideo       MessageKind = "video"
	KindDocument    MessageKind = "document"
	KindSticker     MessageKind = "sticker"
	KindLocation    MessageKind = "location"
	KindContacts    MessageKind = "contacts"
	KindOther       MessageKind = "other"
)

// IsMedia reports whether the kind is attached to tickets.
func (k MessageKind) IsMedia() bool {
	switch k {
	case KindImage, KindAudio, KindVideo, KindDocument:
		return true
	}
	return false
}

// InboundEvent is a requester message as handed over by the channel.
type InboundEvent struct {
	Identity            string
	ExternalMessageID   string
	ReferencedMessageID string
	Kind                MessageKind
	Text                string
	MediaRef            string
	Caption             string
	ReceivedAt          time.Time
}

// LogEntry converts the event into an inbound conversation log entry stamped at now.
func (e InboundEvent) LogEntry(now time.Time) LogEntry {
	return LogEntry{
		ExternalID: e.ExternalMessageID,
		Direction:  DirectionInbound,
		Kind:       e.Kind,
		Body:       e.Text,
		MediaRef:   e.MediaRef,
		Caption:    e.Caption,
		Status:     DeliveryDelivered,
		Timestamp:  now,
	}
}
