package telephony

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Webhook is the subset of the provider's callback fields the service reads.
type Webhook struct {
	CallSid      string `json:"CallSid"`
	RecordingURL string `json:"RecordingUrl"`
	CallStatus   string `json:"CallStatus"`
	From         string `json:"From"`
}

const maxWebhookBody = 1 << 20

// ParseWebhook reads a form-encoded or JSON webhook body.
func ParseWebhook(r *http.Request) (Webhook, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var hook Webhook
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxWebhookBody)).Decode(&hook); err != nil {
			return Webhook{}, fmt.Errorf("telephony: decode json webhook: %w", err)
		}
		return hook.trimmed(), nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		return Webhook{}, fmt.Errorf("telephony: parse form webhook: %w", err)
	}
	hook := Webhook{
		CallSid:      r.Form.Get("CallSid"),
		RecordingURL: r.Form.Get("RecordingUrl"),
		CallStatus:   r.Form.Get("CallStatus"),
		From:         r.Form.Get("From"),
	}
	return hook.trimmed(), nil
}

func (h Webhook) trimmed() Webhook {
	h.CallSid = strings.TrimSpace(h.CallSid)
	h.RecordingURL = strings.TrimSpace(h.RecordingURL)
	h.CallStatus = strings.ToLower(strings.TrimSpace(h.CallStatus))
	h.From = strings.TrimSpace(h.From)
	return h
}

// IsTerminalStatus reports whether a call status means the call is over.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "busy":
		return true
	default:
		return false
	}
}
