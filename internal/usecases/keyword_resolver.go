package usecases

import (
	"strings"

	"go.uber.org/zap"

	"juraganbot/internal/entities"
	"juraganbot/internal/interfaces"
	"juraganbot/pkg/logger"
)

// defaultKeywordGroups is the built-in resolution order, used when the
// messages document does not override it. Order matters: earlier groups
// shadow later ones, so "konsultasi" wins over any overlap.
var defaultKeywordGroups = []entities.KeywordGroup{
	{Keywords: []string{"konsultasi", "konsultan", "hubungi"}, Stage: "konsultasi"},
	{Keywords: []string{"autopilot", "franchise", "sistem"}, Stage: "autopilot"},
	{Keywords: []string{"bonus", "template", "download"}, Stage: "bonus"},
	{Keywords: []string{"tips", "strategi", "bep"}, Stage: "tips"},
	{Keywords: []string{"mulai", "start", "download ebook"}, Stage: "mulai"},
	{Keywords: []string{"help", "menu", "bantuan"}, Stage: "help"},
}

// Resolution is the outcome of matching input text against the funnel.
type Resolution struct {
	Keyword  string
	Message  string
	Reaction string
}

// PlaceholderContext carries the per-message values substituted into
// templates alongside the global link placeholders.
type PlaceholderContext struct {
	Name      string
	Phone     string
	Message   string
	Timestamp string
}

// KeywordResolver maps free text or button/list reply ids to a funnel
// stage and its rendered reply.
type KeywordResolver struct {
	config interfaces.ConfigSource
}

func NewKeywordResolver(config interfaces.ConfigSource) *KeywordResolver {
	return &KeywordResolver{config: config}
}

// Resolve matches the normalized input against the ordered keyword groups.
// A group whose stage is missing from the funnel config falls through to
// the next group; no match at all resolves to the welcome stage.
func (r *KeywordResolver) Resolve(text string) Resolution {
	messages := r.config.Snapshot()
	normalized := strings.ToLower(strings.TrimSpace(text))

	groups := messages.KeywordGroups
	if len(groups) == 0 {
		groups = defaultKeywordGroups
	}

	for _, group := range groups {
		if !matchesAny(normalized, group.Keywords) {
			continue
		}
		stage, ok := messages.Funnel[group.Stage]
		if !ok {
			// Stage not configured: keep scanning later groups.
			continue
		}
		return Resolution{
			Keyword:  group.Stage,
			Message:  r.ReplacePlaceholders(stage.Message, nil),
			Reaction: stage.Reaction,
		}
	}

	welcome := messages.Funnel["welcome"]
	return Resolution{
		Keyword:  "welcome",
		Message:  r.ReplacePlaceholders(welcome.Message, nil),
		Reaction: welcome.Reaction,
	}
}

func matchesAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// ReplacePlaceholders substitutes the global link placeholders and, when a
// context is given, the per-message tokens. Unresolved tokens are left in
// place and logged so a template gap is visible without breaking the reply.
func (r *KeywordResolver) ReplacePlaceholders(message string, ctx *PlaceholderContext) string {
	messages := r.config.Snapshot()

	result := message
	result = strings.ReplaceAll(result, "{{ebook_link}}", messages.EbookLink)
	result = strings.ReplaceAll(result, "{{bonus_link}}", messages.BonusLink)
	result = strings.ReplaceAll(result, "{{konsultan_wa}}", messages.KonsultanWA)

	if ctx != nil {
		if ctx.Name != "" {
			result = strings.ReplaceAll(result, "{name}", ctx.Name)
		}
		if ctx.Phone != "" {
			result = strings.ReplaceAll(result, "{phone}", ctx.Phone)
		}
		if ctx.Message != "" {
			result = strings.ReplaceAll(result, "{message}", ctx.Message)
		}
		if ctx.Timestamp != "" {
			result = strings.ReplaceAll(result, "{timestamp}", ctx.Timestamp)
		}
	}

	if strings.Contains(result, "{{") {
		logger.Warn("template has unresolved placeholders", zap.String("template", firstLine(message)))
	}

	return result
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
