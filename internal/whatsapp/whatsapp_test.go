package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/intake-desk/internal/config"
	"github.com/spec-kit/intake-desk/internal/domain"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"id": "wamid.A", "from": "100", "timestamp": "1767225600", "type": "text", "text": {"body": "John Doe"}},
          {"id": "wamid.B", "from": "100", "timestamp": "1767225601", "type": "image", "image": {"id": "media-1", "caption": " bumper "}},
          {"id": "wamid.C", "from": "100", "timestamp": "1767225602", "type": "document", "document": {"id": "media-2", "filename": "policy.pdf"}},
          {"id": "wamid.D", "from": "100", "timestamp": "1767225603", "type": "text", "text": {"body": "fixed"}, "context": {"from": "100", "id": "wamid.A"}},
          {"id": "wamid.E", "from": "100", "timestamp": "1767225604", "type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "x", "title": "Option 2"}}},
          {"id": "wamid.F", "from": "100", "timestamp": "1767225605", "type": "reaction"}
        ],
        "statuses": [
          {"id": "wamid.OUT", "status": "read", "timestamp": "1767225606", "recipient_id": "100"},
          {"id": "wamid.OUT", "status": "deleted", "timestamp": "1767225607", "recipient_id": "100"}
        ]
      }
    }]
  }]
}`

func TestPayloadEvents(t *testing.T) {
	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(samplePayload), &payload))

	events := payload.Events()
	require.Len(t, events, 6)

	assert.Equal(t, domain.KindText, events[0].Kind)
	assert.Equal(t, "John Doe", events[0].Text)
	assert.Equal(t, "100", events[0].Identity)
	assert.Equal(t, int64(1767225600), events[0].ReceivedAt.Unix())

	assert.Equal(t, domain.KindImage, events[1].Kind)
	assert.Equal(t, "media-1", events[1].MediaRef)
	assert.Equal(t, "bumper", events[1].Caption)
	assert.Equal(t, "bumper", events[1].Text)

	assert.Equal(t, domain.KindDocument, events[2].Kind)
	assert.Equal(t, "[document] policy.pdf", events[2].Text)

	assert.Equal(t, "wamid.A", events[3].ReferencedMessageID)
	assert.Equal(t, "Option 2", events[4].Text)
	assert.Equal(t, domain.KindOther, events[5].Kind)
}

func TestPayloadStatusUpdatesSkipsUnknown(t *testing.T) {
	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(samplePayload), &payload))

	updates := payload.StatusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.DeliveryRead, updates[0].Status)
	assert.Equal(t, "wamid.OUT", updates[0].MessageID)
}

func TestClientSend(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.OUT"}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.WhatsAppConfig{APIBaseURL: srv.URL, APIVersion: "v18.0", Token: "tok", PhoneNumberID: "555"})
	id, err := client.Send(context.Background(), "100", "hello")
	require.NoError(t, err)

	assert.Equal(t, "wamid.OUT", id)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/v18.0/555/messages", gotPath)
	assert.Equal(t, "100", gotBody["to"])
	assert.Equal(t, map[string]any{"body": "hello"}, gotBody["text"])
}

func TestClientSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"token expired","code":190}}`))
	}))
	defer srv.Close()

	client := NewClient(config.WhatsAppConfig{APIBaseURL: srv.URL, APIVersion: "v18.0", Token: "tok", PhoneNumberID: "555"})
	_, err := client.Send(context.Background(), "100", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")

	err = client.MarkRead(context.Background(), "wamid.A")
	require.Error(t, err)
}
