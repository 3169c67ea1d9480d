package repository

import "juraganbot/internal/entities"

// NoopAnalytics satisfies the analytics ports without a backing store.
// Used when no DATABASE_URL is configured and as a test double.
type NoopAnalytics struct{}

func NewNoopAnalytics() *NoopAnalytics { return &NoopAnalytics{} }

func (NoopAnalytics) LogMessage(entities.MessageRecord) error           { return nil }
func (NoopAnalytics) LogConsultation(entities.ConsultationRecord) error { return nil }
func (NoopAnalytics) TrackUser(string, string, string) error            { return nil }
func (NoopAnalytics) TrackKeyword(string) error                         { return nil }
func (NoopAnalytics) TrackButtonClick(entities.ButtonClickRecord) error { return nil }
func (NoopAnalytics) TrackConversion(entities.ConversionRecord) error   { return nil }
func (NoopAnalytics) LogError(entities.ErrorRecord) error               { return nil }
func (NoopAnalytics) GetUserName(string) (string, error)                { return "", nil }
func (NoopAnalytics) GetLastKeyword(string) (string, error)             { return "", nil }
