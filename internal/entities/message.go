package entities

// Inbound message types as delivered by the Cloud API webhook.
const (
	TypeText        = "text"
	TypeInteractive = "interactive"
)

// InboundMessage is one webhook-delivered message, reduced to what the
// funnel pipeline needs. Body holds the free text for text messages and the
// selected button/list row id for interactive replies.
type InboundMessage struct {
	ID            string
	From          string // sender phone number
	Type          string
	Body          string
	ProfileName   string // contact name from the webhook, may be empty
	IsButtonClick bool
}
