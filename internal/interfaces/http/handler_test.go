package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"juraganbot/internal/entities"
	"juraganbot/internal/infrastructure"
	"juraganbot/internal/usecases"
)

type fakeMessenger struct {
	mu    sync.Mutex
	texts []string // "to|body"

	lists   int
	buttons int
}

func (f *fakeMessenger) SendText(to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, to+"|"+body)
	return nil
}

func (f *fakeMessenger) SendInteractiveButtons(to, bodyText string, buttons []entities.Button, footer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons++
	return nil
}

func (f *fakeMessenger) SendInteractiveList(to, bodyText, buttonText string, sections []entities.ListSection, footer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return nil
}

func (f *fakeMessenger) SendReaction(to, messageID, emoji string) error { return nil }
func (f *fakeMessenger) MarkAsRead(messageID string) error              { return nil }
func (f *fakeMessenger) SendTypingIndicator(to string) error            { return nil }

func (f *fakeMessenger) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type noopSink struct{}

func (noopSink) LogMessage(entities.MessageRecord) error           { return nil }
func (noopSink) LogConsultation(entities.ConsultationRecord) error { return nil }
func (noopSink) TrackUser(string, string, string) error            { return nil }
func (noopSink) TrackKeyword(string) error                         { return nil }
func (noopSink) TrackButtonClick(entities.ButtonClickRecord) error { return nil }
func (noopSink) TrackConversion(entities.ConversionRecord) error   { return nil }
func (noopSink) LogError(entities.ErrorRecord) error               { return nil }

type fakeConfigWriter struct {
	mu        sync.Mutex
	saved     []*entities.MessagesConfig
	updatedBy []string
}

func (f *fakeConfigWriter) SaveMessagesDocument(cfg *entities.MessagesConfig, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, cfg)
	f.updatedBy = append(f.updatedBy, updatedBy)
	return nil
}

type noopProfiles struct{}

func (noopProfiles) GetUserName(string) (string, error)    { return "", nil }
func (noopProfiles) GetLastKeyword(string) (string, error) { return "", nil }

const testJWTSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	wa     *fakeMessenger
	writer *fakeConfigWriter
}

func newTestServer(t *testing.T, appSecret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	configPath := dir + "/messages.json"
	writeTestConfig(t, configPath)

	provider := usecases.NewConfigProvider(nil, configPath)
	require.NoError(t, provider.Load())

	wa := &fakeMessenger{}
	cache := infrastructure.NewMessageCache(100, 50)
	limiter := infrastructure.NewRateLimiter(5 * time.Second)
	t.Cleanup(limiter.Stop)

	service := usecases.NewMessageService(
		wa, noopSink{}, noopProfiles{}, provider,
		cache, limiter, "628000admin",
	)

	writer := &fakeConfigWriter{}
	handler := NewHandler(
		service, provider, nil, wa, nil, writer,
		cache, limiter, "verify-me", appSecret,
	)

	router := gin.New()
	handler.SetupRoutes(router, testJWTSecret)

	return &testServer{router: router, wa: wa, writer: writer}
}

func writeTestConfig(t *testing.T, path string) {
	t.Helper()
	cfg := map[string]any{
		"ebook_link":   "https://example.id/ebook",
		"bonus_link":   "https://example.id/bonus",
		"konsultan_wa": "628999",
		"funnel": map[string]any{
			"welcome": map[string]any{"message": "Halo Juragan!", "reaction": "👋"},
			"tips":    map[string]any{"message": "5 strategi BEP", "reaction": "💡"},
		},
		"system_messages": map[string]any{
			"offline_hours":             map[string]any{"message": "Di luar jam kerja"},
			"consultation_notification": map[string]any{"template": "Konsultasi dari {name}"},
			"list_menu":                 map[string]any{"button_text": "Menu"},
		},
		"errors": map[string]any{
			"general_error":    "Kendala teknis",
			"unsupported_type": "Hanya teks",
		},
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestVerifyWebhookEchoesChallenge(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "12345", w.Body.String())
}

func TestVerifyWebhookRejectsWrongToken(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestReceiveWebhookStatusUpdateAcked(t *testing.T) {
	ts := newTestServer(t, "")

	// Delivery-status notifications carry no messages array.
	body := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, ts.wa.sentTexts())
}

func TestReceiveWebhookDispatchesTextMessage(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{
		"entry": [{"changes": [{"value": {
			"contacts": [{"profile": {"name": "Budi"}, "wa_id": "628111"}],
			"messages": [{
				"id": "wamid.test1",
				"from": "628111",
				"type": "text",
				"text": {"body": "tips"}
			}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Processing runs in the background after the ack.
	require.Eventually(t, func() bool {
		for _, sent := range ts.wa.sentTexts() {
			if sent == "628111|5 strategi BEP" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReceiveWebhookSignatureRequired(t *testing.T) {
	ts := newTestServer(t, "app-secret")

	body := []byte(`{"entry":[]}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBuffer(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook/health", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp["status"])
	require.Equal(t, "local", resp["config_source"])
}

func TestRuntimeStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook/stats", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp, "cached_messages")
	require.Contains(t, resp, "active_users")
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"to":"628111","message":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageSingleRecipient(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"to":"628111222333","message":"Promo hari ini!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"628111222333|Promo hari ini!"}, ts.wa.sentTexts())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, float64(1), resp["sent"])
}

func TestSendMessageMultipleRecipients(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"to":["628111222333","628444555666"],"message":"Broadcast"}`
	req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.wa.sentTexts(), 2)
}

func TestSendMessageRejectsInvalidPhone(t *testing.T) {
	ts := newTestServer(t, "")

	for _, to := range []string{`"+628111222333"`, `"62-811"`, `"abc"`, `"123"`} {
		body := `{"to":` + to + `,"message":"hi"}`
		req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+adminToken(t))
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code, "to=%s", to)
	}
	require.Empty(t, ts.wa.sentTexts())
}

func TestSendMessageRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, "")

	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	payload, err := json.Marshal(map[string]any{"to": "628111222333", "message": string(long)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewBuffer(payload))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, ts.wa.sentTexts())
}

func TestAnalyticsEndpointsUnavailableWithoutDatabase(t *testing.T) {
	ts := newTestServer(t, "")

	for _, path := range []string{"/api/stats", "/api/consultations", "/api/users/628111222333/journey"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t))
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusServiceUnavailable, w.Code, "path=%s", path)
	}
}

func TestUpdateConfigSavesDocument(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{
		"ebook_link": "https://example.id/ebook-v2",
		"konsultan_wa": "628999",
		"funnel": {
			"welcome": {"message": "Halo versi baru!", "reaction": "👋"}
		},
		"errors": {"general_error": "Kendala", "unsupported_type": "Hanya teks"}
	}`
	req := httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.writer.saved, 1)
	require.Equal(t, "https://example.id/ebook-v2", ts.writer.saved[0].EbookLink)
	require.Equal(t, "Halo versi baru!", ts.writer.saved[0].Funnel["welcome"].Message)
	require.Equal(t, []string{"user:1"}, ts.writer.updatedBy)
}

func TestUpdateConfigRejectsDocumentWithoutWelcome(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"funnel": {"tips": {"message": "Strategi", "reaction": "💡"}}}`
	req := httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, ts.writer.saved)
}

func TestUpdateConfigRequiresAuth(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, ts.writer.saved)
}

func TestExtractMessageButtonReply(t *testing.T) {
	payload := &webhookPayload{
		Entry: []webhookEntry{{
			Changes: []webhookChange{{
				Value: webhookValue{
					Messages: []webhookMessage{{
						ID:   "wamid.btn",
						From: "628111",
						Type: "interactive",
						Interactive: &interactiveContent{
							ButtonReply: &replyContent{ID: "tips", Title: "💡 Tips BEP"},
						},
					}},
				},
			}},
		}},
	}

	msg, ok := extractMessage(payload)
	require.True(t, ok)
	require.Equal(t, "tips", msg.Body)
	require.True(t, msg.IsButtonClick)
}

func TestExtractMessageListReply(t *testing.T) {
	payload := &webhookPayload{
		Entry: []webhookEntry{{
			Changes: []webhookChange{{
				Value: webhookValue{
					Messages: []webhookMessage{{
						ID:   "wamid.list",
						From: "628111",
						Type: "interactive",
						Interactive: &interactiveContent{
							ListReply: &replyContent{ID: "autopilot", Title: "⚡ Sistem Autopilot"},
						},
					}},
				},
			}},
		}},
	}

	msg, ok := extractMessage(payload)
	require.True(t, ok)
	require.Equal(t, "autopilot", msg.Body)
	require.True(t, msg.IsButtonClick)
}
