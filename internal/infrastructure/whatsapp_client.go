package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"juraganbot/internal/entities"
)

const graphAPIVersion = "v24.0"

// Per-call timeouts. Text and interactive sends get the longer budget;
// reactions, read receipts and typing indicators are fire-and-forget.
const (
	sendTimeout   = 10 * time.Second
	signalTimeout = 5 * time.Second
)

// WhatsAppBusinessClient talks to the Cloud API messages endpoint. Every
// operation is a single authenticated POST; there is no retry logic.
type WhatsAppBusinessClient struct {
	accessToken   string
	phoneNumberID string
	apiURL        string
	httpClient    *http.Client
	sendLimiter   *rate.Limiter
}

func NewWhatsAppBusinessClient(accessToken, phoneNumberID string) *WhatsAppBusinessClient {
	return &WhatsAppBusinessClient{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		apiURL:        fmt.Sprintf("https://graph.facebook.com/%s/%s/messages", graphAPIVersion, phoneNumberID),
		httpClient:    &http.Client{},
		// Graph caps outbound throughput per phone number.
		sendLimiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// graphError is the Cloud API error envelope.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (w *WhatsAppBusinessClient) post(payload map[string]interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := w.sendLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("outbound rate limiter: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloud api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr graphError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("cloud api %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("cloud api status %d", resp.StatusCode)
	}
	return nil
}

// SendText sends a plain text message.
func (w *WhatsAppBusinessClient) SendText(to, body string) error {
	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}, sendTimeout)
}

// SendInteractiveButtons sends a quick-reply button message. The Cloud API
// accepts at most 3 buttons with 20-character titles; extras are cut here
// rather than bounced by the provider.
func (w *WhatsAppBusinessClient) SendInteractiveButtons(to, bodyText string, buttons []entities.Button, footer string) error {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}

	actionButtons := make([]map[string]interface{}, 0, len(buttons))
	for i, btn := range buttons {
		id := btn.ID
		if id == "" {
			id = fmt.Sprintf("btn_%d", i)
		}
		actionButtons = append(actionButtons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]string{
				"id":    id,
				"title": truncate(btn.Title, 20),
			},
		})
	}

	interactive := map[string]interface{}{
		"type":   "button",
		"body":   map[string]string{"text": bodyText},
		"action": map[string]interface{}{"buttons": actionButtons},
	}
	if footer != "" {
		interactive["footer"] = map[string]string{"text": footer}
	}

	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}, sendTimeout)
}

// SendInteractiveList sends a sectioned list message.
func (w *WhatsAppBusinessClient) SendInteractiveList(to, bodyText, buttonText string, sections []entities.ListSection, footer string) error {
	interactive := map[string]interface{}{
		"type": "list",
		"body": map[string]string{"text": bodyText},
		"action": map[string]interface{}{
			"button":   buttonText,
			"sections": sections,
		},
	}
	if footer != "" {
		interactive["footer"] = map[string]string{"text": footer}
	}

	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}, sendTimeout)
}

// SendReaction reacts to a message with an emoji.
func (w *WhatsAppBusinessClient) SendReaction(to, messageID, emoji string) error {
	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "reaction",
		"reaction": map[string]string{
			"message_id": messageID,
			"emoji":      emoji,
		},
	}, signalTimeout)
}

// MarkAsRead flags an inbound message as read.
func (w *WhatsAppBusinessClient) MarkAsRead(messageID string) error {
	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}, signalTimeout)
}

// SendTypingIndicator shows the typing state to the recipient.
func (w *WhatsAppBusinessClient) SendTypingIndicator(to string) error {
	return w.post(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "typing",
	}, signalTimeout)
}

// truncate cuts s to max characters. The Cloud API limits are character
// counts, so slicing bytes would mangle emoji titles.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
