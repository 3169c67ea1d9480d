package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"juraganbot/internal/entities"
)

// AnalyticsRepository persists funnel events to Postgres. All write methods
// are best-effort from the pipeline's point of view; errors are returned so
// the caller can log them, never to block a reply.
type AnalyticsRepository struct {
	db *pgxpool.Pool
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// LogMessage records one processed inbound message.
func (r *AnalyticsRepository) LogMessage(rec entities.MessageRecord) error {
	now := time.Now()
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO messages (message_id, sender, name, type, text_body, keyword, status, date, hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.MessageID, rec.From, rec.Name, rec.Type, rec.TextBody, rec.Keyword, rec.Status,
		now.Format("2006-01-02"), now.Hour())
	return err
}

// LogConsultation records a consultation request for admin follow-up.
func (r *AnalyticsRepository) LogConsultation(rec entities.ConsultationRecord) error {
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO consultations (sender, name, message, status, notified, date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.From, rec.Name, rec.Message, rec.Status, rec.Notified, time.Now().Format("2006-01-02"))
	return err
}

// TrackUser upserts the sender profile: first contact creates the row,
// later contacts bump last_seen and the message counter. The stored name is
// only replaced when the webhook supplied one.
func (r *AnalyticsRepository) TrackUser(userID, name, keyword string) error {
	if name == "" {
		name = "Unknown"
	}
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO user_profiles (user_id, name, first_seen, last_seen, message_count, last_keyword)
		VALUES ($1, $2, NOW(), NOW(), 1, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			last_seen = NOW(),
			message_count = user_profiles.message_count + 1,
			last_keyword = EXCLUDED.last_keyword,
			name = CASE WHEN EXCLUDED.name <> 'Unknown' THEN EXCLUDED.name ELSE user_profiles.name END
	`, userID, name, keyword)
	return err
}

// TrackKeyword increments today's counter for a keyword.
func (r *AnalyticsRepository) TrackKeyword(keyword string) error {
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO keyword_stats (keyword, date, count, conversions)
		VALUES ($1, $2, 1, 0)
		ON CONFLICT (keyword, date)
		DO UPDATE SET count = keyword_stats.count + 1
	`, keyword, time.Now().Format("2006-01-02"))
	return err
}

// TrackButtonClick records an interactive-reply selection.
func (r *AnalyticsRepository) TrackButtonClick(rec entities.ButtonClickRecord) error {
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO button_clicks (sender, button_id, button_title, context, date)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.From, rec.ButtonID, rec.ButtonTitle, rec.Context, time.Now().Format("2006-01-02"))
	return err
}

// TrackConversion records a funnel transition. A transition into the
// consultation stage also counts as a conversion for the origin keyword.
func (r *AnalyticsRepository) TrackConversion(rec entities.ConversionRecord) error {
	today := time.Now().Format("2006-01-02")
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO conversions (sender, from_keyword, to_keyword, date)
		VALUES ($1, $2, $3, $4)
	`, rec.From, rec.FromKeyword, rec.ToKeyword, today)
	if err != nil {
		return err
	}

	if rec.ToKeyword == "konsultasi" && rec.FromKeyword != "" {
		_, err = r.db.Exec(context.Background(), `
			INSERT INTO keyword_stats (keyword, date, count, conversions)
			VALUES ($1, $2, 0, 1)
			ON CONFLICT (keyword, date)
			DO UPDATE SET conversions = keyword_stats.conversions + 1
		`, rec.FromKeyword, today)
	}
	return err
}

// LogError records an internal failure for later inspection.
func (r *AnalyticsRepository) LogError(rec entities.ErrorRecord) error {
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO bot_errors (type, message, context, date)
		VALUES ($1, $2, $3, $4)
	`, rec.Type, rec.Message, rec.Context, time.Now().Format("2006-01-02"))
	return err
}

// GetUserName returns the stored display name for a sender, or "" when the
// sender is unknown.
func (r *AnalyticsRepository) GetUserName(userID string) (string, error) {
	var name string
	err := r.db.QueryRow(context.Background(),
		"SELECT name FROM user_profiles WHERE user_id = $1", userID).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if name == "Unknown" {
		return "", nil
	}
	return name, nil
}

// GetLastKeyword returns the last funnel stage recorded for a sender, or
// "" for unknown senders.
func (r *AnalyticsRepository) GetLastKeyword(userID string) (string, error) {
	var keyword *string
	err := r.db.QueryRow(context.Background(),
		"SELECT last_keyword FROM user_profiles WHERE user_id = $1", userID).Scan(&keyword)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if keyword == nil {
		return "", nil
	}
	return *keyword, nil
}

// JourneyEntry is one step of a sender's message history.
type JourneyEntry struct {
	MessageID string    `json:"message_id"`
	TextBody  string    `json:"text_body"`
	Keyword   string    `json:"keyword"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// GetUserJourney returns a sender's most recent messages, newest first.
func (r *AnalyticsRepository) GetUserJourney(userID string, limit int) ([]JourneyEntry, error) {
	rows, err := r.db.Query(context.Background(), `
		SELECT message_id, text_body, keyword, type, created_at
		FROM messages WHERE sender = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	journey := []JourneyEntry{}
	for rows.Next() {
		var e JourneyEntry
		if err := rows.Scan(&e.MessageID, &e.TextBody, &e.Keyword, &e.Type, &e.CreatedAt); err != nil {
			return nil, err
		}
		journey = append(journey, e)
	}
	return journey, rows.Err()
}

// Consultation is the admin-facing view of a consultation request.
type Consultation struct {
	ID        int       `json:"id"`
	Sender    string    `json:"sender"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentConsultations returns the latest consultation requests.
func (r *AnalyticsRepository) RecentConsultations(limit int) ([]Consultation, error) {
	rows, err := r.db.Query(context.Background(), `
		SELECT id, sender, name, message, status, created_at
		FROM consultations ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Consultation{}
	for rows.Next() {
		var c Consultation
		if err := rows.Scan(&c.ID, &c.Sender, &c.Name, &c.Message, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// GlobalStats is the aggregate view served by the admin stats endpoint.
type GlobalStats struct {
	TotalMessages        int `json:"total_messages"`
	TotalUsers           int `json:"total_users"`
	ConsultationRequests int `json:"consultation_requests"`
}

// GetStats computes the aggregate counters.
func (r *AnalyticsRepository) GetStats() (GlobalStats, error) {
	var s GlobalStats
	err := r.db.QueryRow(context.Background(), `
		SELECT
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM user_profiles),
			(SELECT COUNT(*) FROM consultations)
	`).Scan(&s.TotalMessages, &s.TotalUsers, &s.ConsultationRequests)
	return s, err
}
