package entities

// FunnelStage is one step of the marketing conversation: the reply template
// and the reaction emoji sent alongside it.
type FunnelStage struct {
	Message  string `json:"message"`
	Reaction string `json:"reaction"`
}

// Button is a single quick-reply button. The Cloud API caps titles at 20
// characters; the outbound client truncates.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ButtonSet is the interactive-buttons configuration attached to a stage.
type ButtonSet struct {
	Buttons  []Button `json:"buttons"`
	Footer   string   `json:"footer,omitempty"`
	FollowUp string   `json:"follow_up,omitempty"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListMenu is the interactive-list configuration used by the help stage.
type ListMenu struct {
	ButtonText string        `json:"button_text"`
	FooterText string        `json:"footer_text,omitempty"`
	Sections   []ListSection `json:"sections"`
}

// WorkingHours is the local time window during which live replies are sent.
// Days is a list of lowercase English weekday names; empty means every day.
type WorkingHours struct {
	StartHour int      `json:"start_hour"`
	EndHour   int      `json:"end_hour"`
	Timezone  string   `json:"timezone"`
	Days      []string `json:"days,omitempty"`
}

// KeywordGroup maps a set of trigger keywords to a funnel stage key.
// Groups are matched in order; earlier groups shadow later ones.
type KeywordGroup struct {
	Keywords []string `json:"keywords"`
	Stage    string   `json:"stage"`
}

type OfflineHours struct {
	Message          string `json:"message"`
	GreetingWithName *bool  `json:"greeting_with_name,omitempty"`
}

type ConsultationNotification struct {
	Template string `json:"template"`
}

// SystemMessages groups everything outside the per-stage funnel templates.
type SystemMessages struct {
	OfflineHours             OfflineHours             `json:"offline_hours"`
	ConsultationNotification ConsultationNotification `json:"consultation_notification"`
	ButtonText               map[string]string        `json:"button_text"`
	ButtonFooter             map[string]string        `json:"button_footer"`
	FollowUpMessages         map[string]string        `json:"follow_up_messages"`
	ListMenu                 ListMenu                 `json:"list_menu"`
	WorkingHours             WorkingHours             `json:"working_hours"`
}

type ErrorMessages struct {
	GeneralError    string `json:"general_error"`
	UnsupportedType string `json:"unsupported_type"`
}

// MessagesConfig is the full messages document: funnel templates, system
// messages, canned errors and the global placeholder links. It mirrors the
// bot_config document edited from the dashboard.
type MessagesConfig struct {
	EbookLink      string                 `json:"ebook_link"`
	BonusLink      string                 `json:"bonus_link"`
	KonsultanWA    string                 `json:"konsultan_wa"`
	Funnel         map[string]FunnelStage `json:"funnel"`
	KeywordGroups  []KeywordGroup         `json:"keyword_groups,omitempty"`
	SystemMessages SystemMessages         `json:"system_messages"`
	Errors         ErrorMessages          `json:"errors"`
}
