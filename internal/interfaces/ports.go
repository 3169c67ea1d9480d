package interfaces

import "juraganbot/internal/entities"

// Messenger is the outbound boundary to the messaging provider. Each call
// is one provider request; failures surface as errors and the caller
// decides whether they are fatal for the current reply.
type Messenger interface {
	SendText(to, body string) error
	SendInteractiveButtons(to, bodyText string, buttons []entities.Button, footer string) error
	SendInteractiveList(to, bodyText, buttonText string, sections []entities.ListSection, footer string) error
	SendReaction(to, messageID, emoji string) error
	MarkAsRead(messageID string) error
	SendTypingIndicator(to string) error
}

// AnalyticsSink receives funnel events. Implementations are best-effort:
// the pipeline logs returned errors and moves on, so a sink must never be
// required for the user-facing reply to happen.
type AnalyticsSink interface {
	LogMessage(rec entities.MessageRecord) error
	LogConsultation(rec entities.ConsultationRecord) error
	TrackUser(userID, name, keyword string) error
	TrackKeyword(keyword string) error
	TrackButtonClick(rec entities.ButtonClickRecord) error
	TrackConversion(rec entities.ConversionRecord) error
	LogError(rec entities.ErrorRecord) error
}

// ProfileStore is the read side of the analytics store: it recovers a
// sender's display name when the webhook does not carry one, and the last
// funnel stage for conversion tracking.
type ProfileStore interface {
	GetUserName(userID string) (string, error)
	GetLastKeyword(userID string) (string, error)
}

// ConfigSource hands out the current messages document. Snapshot never
// returns nil once the source reported ready.
type ConfigSource interface {
	Snapshot() *entities.MessagesConfig
}
