package usecases

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"juraganbot/internal/entities"
	"juraganbot/internal/interfaces"
	"juraganbot/pkg/logger"
)

// Dedup and rate-limit boundaries, shared by the processor and the stats
// endpoint.
type DedupCache interface {
	Has(messageID string) bool
	Add(messageID string)
}

type SenderLimiter interface {
	IsLimited(userID string) bool
}

// followUpStages are the funnel stages that get a buttons follow-up after
// the text reply.
var followUpStages = map[string]bool{
	"mulai":     true,
	"tips":      true,
	"bonus":     true,
	"autopilot": true,
}

// MessageService drives one inbound message through the funnel pipeline:
// working hours, dedup, rate limit, keyword resolution, analytics and the
// stage-specific reply dispatch.
type MessageService struct {
	wa          interfaces.Messenger
	sink        interfaces.AnalyticsSink
	profiles    interfaces.ProfileStore
	config      interfaces.ConfigSource
	resolver    *KeywordResolver
	cache       DedupCache
	limiter     SenderLimiter
	adminNumber string

	// Injectable for tests; defaults cover production.
	now     func() time.Time
	sleep   func(time.Duration)
	randInt func(n int) int
}

func NewMessageService(
	wa interfaces.Messenger,
	sink interfaces.AnalyticsSink,
	profiles interfaces.ProfileStore,
	config interfaces.ConfigSource,
	cache DedupCache,
	limiter SenderLimiter,
	adminNumber string,
) *MessageService {
	return &MessageService{
		wa:          wa,
		sink:        sink,
		profiles:    profiles,
		config:      config,
		resolver:    NewKeywordResolver(config),
		cache:       cache,
		limiter:     limiter,
		adminNumber: adminNumber,
		now:         time.Now,
		sleep:       time.Sleep,
		randInt:     rand.Intn,
	}
}

// ProcessMessage runs the pipeline states in order; each state may be a
// terminal early exit. Only the consultation dispatch propagates errors.
func (s *MessageService) ProcessMessage(msg entities.InboundMessage) error {
	messages := s.config.Snapshot()
	userName := s.lookupName(msg)

	// 1. Working-hours gate. Indeterminate state counts as open so a
	// config mistake never silently mutes the funnel.
	if !s.withinWorkingHours(messages.SystemMessages.WorkingHours) {
		s.sendOfflineReply(msg.From, userName, messages)
		logger.Info("offline auto-reply sent", zap.String("from", msg.From), zap.String("name", userName))
		return nil
	}

	// 2. Effective text body: free text, or the interactive selection id
	// extracted by the webhook layer.
	textBody := msg.Body

	// 3. Dedup: at most one processing pass per message id.
	if s.cache.Has(msg.ID) {
		logger.Warn("duplicate message ignored", zap.String("message_id", msg.ID))
		return nil
	}
	s.cache.Add(msg.ID)

	logger.Info("message received",
		zap.String("from", msg.From),
		zap.String("name", userName),
		zap.String("type", msg.Type),
		zap.String("body", preview(textBody)),
		zap.String("message_id", msg.ID))

	// 4. Rate limit: intentional silence, not an error.
	if s.limiter.IsLimited(msg.From) {
		logger.Warn("rate limit hit", zap.String("from", msg.From))
		return nil
	}

	// 5. Type support.
	if msg.Type != entities.TypeText && msg.Type != entities.TypeInteractive {
		logger.Warn("unsupported message type", zap.String("type", msg.Type))
		if err := s.wa.SendText(msg.From, messages.Errors.UnsupportedType); err != nil {
			logger.Error("failed to send unsupported-type reply", zap.Error(err))
		}
		return nil
	}

	// 6. Keyword resolution.
	res := s.resolver.Resolve(textBody)
	logger.Info("keyword matched", zap.String("keyword", res.Keyword), zap.String("from", msg.From))

	// 7. Analytics, each independently best-effort.
	s.recordAnalytics(msg, textBody, userName, res.Keyword)

	// 8. Reply dispatch.
	if res.Keyword == "konsultasi" {
		return s.handleConsultation(msg, textBody, userName, res)
	}
	s.handleRegularMessage(msg, userName, res)
	return nil
}

// lookupName prefers the webhook contact profile, then the stored profile.
func (s *MessageService) lookupName(msg entities.InboundMessage) string {
	if msg.ProfileName != "" {
		return msg.ProfileName
	}
	name, err := s.profiles.GetUserName(msg.From)
	if err != nil {
		logger.Warn("profile name lookup failed", zap.Error(err))
	}
	if name != "" {
		return name
	}
	return "Unknown"
}

// withinWorkingHours computes the local hour in the configured timezone.
// Fail-open: any indeterminate state is treated as inside working hours.
func (s *MessageService) withinWorkingHours(wh entities.WorkingHours) bool {
	if wh.StartHour == 0 && wh.EndHour == 0 {
		return true // no window configured
	}

	loc, err := time.LoadLocation(wh.Timezone)
	if err != nil {
		logger.Warn("invalid working-hours timezone, treating as open", zap.String("timezone", wh.Timezone))
		return true
	}

	now := s.now().In(loc)

	if len(wh.Days) > 0 {
		day := strings.ToLower(now.Weekday().String())
		found := false
		for _, d := range wh.Days {
			if strings.ToLower(d) == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	hour := now.Hour()
	return hour >= wh.StartHour && hour < wh.EndHour
}

func (s *MessageService) sendOfflineReply(to, userName string, messages *entities.MessagesConfig) {
	offline := messages.SystemMessages.OfflineHours
	reply := offline.Message

	greetWithName := offline.GreetingWithName == nil || *offline.GreetingWithName
	if greetWithName && userName != "Unknown" {
		reply = strings.ReplaceAll(reply, "{name}", userName)
	} else {
		reply = strings.ReplaceAll(reply, "{name}!", "!")
		reply = strings.ReplaceAll(reply, "Halo !", "Halo!")
	}

	if err := s.wa.SendText(to, reply); err != nil {
		logger.Error("failed to send offline reply", zap.Error(err))
	}
}

// recordAnalytics fires the best-effort side effects. A failing sink is
// logged and never blocks the user-facing reply.
func (s *MessageService) recordAnalytics(msg entities.InboundMessage, textBody, userName, keyword string) {
	prevKeyword, err := s.profiles.GetLastKeyword(msg.From)
	if err != nil {
		logger.Warn("last-keyword lookup failed", zap.Error(err))
	}

	if err := s.sink.TrackUser(msg.From, userName, keyword); err != nil {
		logger.Warn("failed to track user", zap.Error(err))
	}

	if err := s.sink.LogMessage(entities.MessageRecord{
		MessageID: msg.ID,
		From:      msg.From,
		Name:      userName,
		Type:      msg.Type,
		TextBody:  textBody,
		Keyword:   keyword,
		Status:    "success",
	}); err != nil {
		logger.Warn("failed to log message", zap.Error(err))
	}

	if err := s.sink.TrackKeyword(keyword); err != nil {
		logger.Warn("failed to track keyword", zap.Error(err))
	}

	if msg.IsButtonClick {
		if err := s.sink.TrackButtonClick(entities.ButtonClickRecord{
			From:        msg.From,
			ButtonID:    textBody,
			ButtonTitle: textBody,
		}); err != nil {
			logger.Warn("failed to track button click", zap.Error(err))
		}
	}

	if prevKeyword != "" && prevKeyword != keyword {
		if err := s.sink.TrackConversion(entities.ConversionRecord{
			From:        msg.From,
			FromKeyword: prevKeyword,
			ToKeyword:   keyword,
		}); err != nil {
			logger.Warn("failed to track conversion", zap.Error(err))
		}
	}
}

// handleConsultation acknowledges the sender, notifies the admin and logs
// the consultation. This is the only dispatch path that re-raises send
// failures to the caller, after attempting a generic error reply.
func (s *MessageService) handleConsultation(msg entities.InboundMessage, textBody, userName string, res Resolution) error {
	messages := s.config.Snapshot()

	err := func() error {
		if terr := s.wa.SendTypingIndicator(msg.From); terr != nil {
			logger.Warn("typing indicator failed", zap.Error(terr))
		}
		s.sleep(time.Second)

		if serr := s.wa.SendText(msg.From, res.Message); serr != nil {
			return fmt.Errorf("send consultation reply: %w", serr)
		}

		notification := s.resolver.ReplacePlaceholders(
			messages.SystemMessages.ConsultationNotification.Template,
			&PlaceholderContext{
				Name:      userName,
				Phone:     msg.From,
				Message:   textBody,
				Timestamp: s.localTimestamp(messages.SystemMessages.WorkingHours.Timezone),
			},
		)
		if serr := s.wa.SendText(s.adminNumber, notification); serr != nil {
			return fmt.Errorf("send admin notification: %w", serr)
		}

		if rerr := s.wa.SendReaction(msg.From, msg.ID, res.Reaction); rerr != nil {
			return fmt.Errorf("send reaction: %w", rerr)
		}
		return nil
	}()
	if err != nil {
		logger.Error("consultation flow failed", zap.Error(err), zap.String("from", msg.From))
		if serr := s.wa.SendText(msg.From, messages.Errors.GeneralError); serr != nil {
			logger.Error("failed to send error reply", zap.Error(serr))
		}
		return err
	}

	if lerr := s.sink.LogConsultation(entities.ConsultationRecord{
		From:     msg.From,
		Name:     userName,
		Message:  textBody,
		Status:   "pending",
		Notified: true,
	}); lerr != nil {
		logger.Warn("failed to log consultation", zap.Error(lerr))
	}

	if rerr := s.wa.MarkAsRead(msg.ID); rerr != nil {
		logger.Warn("mark-as-read failed", zap.Error(rerr))
	}

	logger.Info("consultation processed", zap.String("from", msg.From), zap.String("name", userName))
	return nil
}

// handleRegularMessage sends the stage reply with human pacing: reaction,
// typing indicator, a 1-3s randomized delay, then the stage-specific
// message shape. Failures are answered with a generic error and swallowed.
func (s *MessageService) handleRegularMessage(msg entities.InboundMessage, userName string, res Resolution) {
	messages := s.config.Snapshot()

	err := func() error {
		if rerr := s.wa.SendReaction(msg.From, msg.ID, res.Reaction); rerr != nil {
			return fmt.Errorf("send reaction: %w", rerr)
		}
		if terr := s.wa.SendTypingIndicator(msg.From); terr != nil {
			logger.Warn("typing indicator failed", zap.Error(terr))
		}

		s.sleep(time.Duration(s.randInt(2000)+1000) * time.Millisecond)

		reply := res.Message
		if res.Keyword == "welcome" && userName != "Unknown" {
			reply = strings.Replace(reply, "Halo Juragan!", "Halo "+userName+"!", 1)
		}

		switch {
		case res.Keyword == "welcome":
			set := s.buttonSet("welcome", messages)
			return s.wa.SendInteractiveButtons(msg.From, reply, set.Buttons, set.Footer)

		case res.Keyword == "help":
			menu := messages.SystemMessages.ListMenu
			return s.wa.SendInteractiveList(msg.From, reply, menu.ButtonText, menu.Sections, menu.FooterText)

		case followUpStages[res.Keyword]:
			if serr := s.wa.SendText(msg.From, reply); serr != nil {
				return serr
			}
			set := s.buttonSet(res.Keyword, messages)
			if set.FollowUp != "" && len(set.Buttons) > 0 {
				s.sleep(2 * time.Second)
				return s.wa.SendInteractiveButtons(msg.From, set.FollowUp, set.Buttons, set.Footer)
			}
			return nil

		default:
			return s.wa.SendText(msg.From, reply)
		}
	}()
	if err != nil {
		logger.Error("message flow failed", zap.Error(err), zap.String("from", msg.From))
		if serr := s.wa.SendText(msg.From, messages.Errors.GeneralError); serr != nil {
			logger.Error("failed to send error reply", zap.Error(serr))
		}
		return
	}

	if rerr := s.wa.MarkAsRead(msg.ID); rerr != nil {
		logger.Warn("mark-as-read failed", zap.Error(rerr))
	}

	logger.Info("message flow completed", zap.String("from", msg.From), zap.String("keyword", res.Keyword))
}

// buttonTargets maps each stage to its next-step button targets, in the
// order they appear under the message.
var buttonTargets = map[string][]string{
	"welcome":   {"mulai", "tips", "konsultasi"},
	"mulai":     {"tips", "bonus", "autopilot"},
	"tips":      {"bonus", "autopilot", "konsultasi"},
	"bonus":     {"autopilot", "konsultasi"},
	"autopilot": {"konsultasi"},
}

// buttonTitleKeys resolves the button_text entry for a (stage, target)
// pair, e.g. welcome+mulai -> "welcome_download".
var buttonTitleKeys = map[string]map[string]string{
	"welcome":   {"mulai": "welcome_download", "tips": "welcome_tips", "konsultasi": "welcome_consultation"},
	"mulai":     {"tips": "mulai_tips", "bonus": "mulai_bonus", "autopilot": "mulai_autopilot"},
	"tips":      {"bonus": "tips_bonus", "autopilot": "tips_autopilot", "konsultasi": "tips_consultation"},
	"bonus":     {"autopilot": "bonus_autopilot", "konsultasi": "bonus_consultation"},
	"autopilot": {"konsultasi": "autopilot_consultation"},
}

// buttonSet assembles the interactive-buttons config for a stage from the
// messages document. Targets with no configured title are skipped.
func (s *MessageService) buttonSet(stage string, messages *entities.MessagesConfig) entities.ButtonSet {
	var set entities.ButtonSet
	for _, target := range buttonTargets[stage] {
		title := messages.SystemMessages.ButtonText[buttonTitleKeys[stage][target]]
		if title == "" {
			continue
		}
		set.Buttons = append(set.Buttons, entities.Button{ID: target, Title: title})
	}
	set.Footer = messages.SystemMessages.ButtonFooter[stage]
	set.FollowUp = messages.SystemMessages.FollowUpMessages["after_"+stage]
	return set
}

// localTimestamp renders the admin-notification timestamp in the funnel's
// timezone (Indonesian day-first format).
func (s *MessageService) localTimestamp(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return s.now().In(loc).Format("02/01/2006, 15.04.05")
}

func preview(body string) string {
	if len(body) > 50 {
		return body[:50] + "..."
	}
	return body
}
