package whatsapp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// WebhookPayload is the body of a Cloud API webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps one notification.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries inbound messages and delivery statuses.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Contact describes the sender profile.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Context     *MsgContext  `json:"context,omitempty"`
	Text        *Text        `json:"text,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Sticker     *Media       `json:"sticker,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Contacts    []any        `json:"contacts,omitempty"`
}

// MsgContext references a prior message.
type MsgContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// Text body.
type Text struct {
	Body string `json:"body"`
}

// Button reply to a template button.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Interactive reply.
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply,omitempty"`
}

// Media is any uploaded object.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Location share.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// StatusUpdate is a parsed delivery receipt.
type StatusUpdate struct {
	MessageID   string
	RecipientID string
	Status      domain.DeliveryStatus
	Timestamp   time.Time
}

// Events flattens all inbound messages in the payload.
func (p WebhookPayload) Events() []domain.InboundEvent {
	var out []domain.InboundEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				out = append(out, msg.ToInboundEvent())
			}
		}
	}
	return out
}

// StatusUpdates flattens all recognised delivery receipts in the payload.
func (p WebhookPayload) StatusUpdates() []StatusUpdate {
	var out []StatusUpdate
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				status := domain.DeliveryStatus(st.Status)
				switch status {
				case domain.DeliverySent, domain.DeliveryDelivered, domain.DeliveryRead, domain.DeliveryFailed:
				default:
					continue
				}
				out = append(out, StatusUpdate{
					MessageID:   st.ID,
					RecipientID: st.RecipientID,
					Status:      status,
					Timestamp:   parseUnix(st.Timestamp),
				})
			}
		}
	}
	return out
}

// ToInboundEvent extracts kind, text, media reference and caption.
func (m Message) ToInboundEvent() domain.InboundEvent {
	ev := domain.InboundEvent{
		Identity:          m.From,
		ExternalMessageID: m.ID,
		ReceivedAt:        parseUnix(m.Timestamp),
	}
	if m.Context != nil {
		ev.ReferencedMessageID = m.Context.ID
	}

	switch m.Type {
	case "text":
		ev.Kind = domain.KindText
		if m.Text != nil {
			ev.Text = m.Text.Body
		}
	case "button":
		ev.Kind = domain.KindButton
		if m.Button != nil {
			ev.Text = m.Button.Text
		}
	case "interactive":
		ev.Kind = domain.KindInteractive
		ev.Text = "interactive reply"
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil:
				ev.Text = m.Interactive.ButtonReply.Title
			case m.Interactive.ListReply != nil:
				ev.Text = m.Interactive.ListReply.Title
			}
		}
	case "image":
		ev.Kind = domain.KindImage
		fillMedia(&ev, m.Image, "[image]")
	case "video":
		ev.Kind = domain.KindVideo
		fillMedia(&ev, m.Video, "[video]")
	case "audio":
		ev.Kind = domain.KindAudio
		fillMedia(&ev, m.Audio, "[audio]")
		ev.Caption = ""
		ev.Text = "[audio]"
	case "document":
		ev.Kind = domain.KindDocument
		label := "[document]"
		if m.Document != nil && m.Document.Filename != "" {
			label = "[document] " + m.Document.Filename
		}
		fillMedia(&ev, m.Document, label)
	case "sticker":
		ev.Kind = domain.KindSticker
		if m.Sticker != nil {
			ev.MediaRef = m.Sticker.ID
		}
		ev.Text = "[sticker]"
	case "location":
		ev.Kind = domain.KindLocation
		if m.Location != nil {
			ev.Text = fmt.Sprintf("[location] %s, %s",
				strconv.FormatFloat(m.Location.Latitude, 'f', -1, 64),
				strconv.FormatFloat(m.Location.Longitude, 'f', -1, 64))
		}
	case "contacts":
		ev.Kind = domain.KindContacts
		ev.Text = "[contact shared]"
	default:
		ev.Kind = domain.KindOther
		ev.Text = "[unsupported message type: " + m.Type + "]"
	}
	return ev
}

func fillMedia(ev *domain.InboundEvent, media *Media, label string) {
	ev.Text = label
	if media == nil {
		return
	}
	ev.MediaRef = media.ID
	ev.Caption = strings.TrimSpace(media.Caption)
	if ev.Caption != "" {
		ev.Text = ev.Caption
	}
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
