package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sofia/bot"
	"sofia/inbox"
	"sofia/models"
	"sofia/sessions"
	"sofia/workers"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendText(ctx context.Context, to string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) SendButtons(ctx context.Context, to string, body string, buttons []bot.Button) error {
	return f.SendText(ctx, to, body)
}

func (f *fakeSender) SendList(ctx context.Context, to string, list bot.ListReply) error {
	return f.SendText(ctx, to, list.Body)
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

func setupGateway(t *testing.T, intent string) (*gorm.DB, *fakeSender, *workers.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.Agent{},
		&models.Customer{},
		&models.ConversationSession{},
		&models.Lead{},
		&models.ChatMessage{},
	).Error)

	require.NoError(t, db.Create(&models.Agent{
		Name:   "Rosa",
		Email:  "rosa@cargoline.pe",
		Role:   models.AGENT_ROLE_ASESOR,
		Status: models.AGENT_STATUS_ACTIVE,
	}).Error)

	sender := &fakeSender{}
	store := sessions.NewStore(db)
	chatlog := inbox.NewChatLog(db)
	leadRouter := inbox.NewRouter(db)
	scheduler := workers.NewScheduler(store, leadRouter, chatlog, sender, time.Hour)

	Configure(Services{
		Sessions:  store,
		ChatLog:   chatlog,
		Router:    leadRouter,
		Engine:    bot.NewEngine(func(ctx context.Context, text string) string { return intent }),
		Scheduler: scheduler,
		Sender:    sender,
	})
	return db, sender, scheduler
}

func textPayload(from, name, msgID, body string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"contacts": [{"profile": {"name": %q}, "wa_id": %q}],
			"messages": [{"from": %q, "id": %q, "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, name, from, from, msgID, body)
}

func inbound(from, text string) InboundMessage {
	return InboundMessage{
		From:          from,
		Kind:          models.CONTENT_TYPE_TEXT,
		Text:          text,
		ProviderMsgID: "wamid.test",
	}
}

func TestProcessInboundGreetingFlow(t *testing.T) {
	db, sender, _ := setupGateway(t, bot.INTENT_GREETING)

	require.NoError(t, ProcessInbound(context.Background(), InboundMessage{
		From: "51987654321",
		Name: "Ana",
		Kind: models.CONTENT_TYPE_TEXT,
		Text: "hola!",
	}))

	// el teléfono quedó indexado sin el código de país
	var lead models.Lead
	require.NoError(t, db.Where("phone = ?", "987654321").First(&lead).Error)
	assert.Equal(t, models.LEAD_STATE_NUEVO, lead.State)
	assert.Equal(t, "Ana", lead.Name)

	// entrante + dos respuestas del bot (saludo y menú)
	var msgs []models.ChatMessage
	require.NoError(t, db.Where("lead_id = ?", lead.ID).Order("id asc").Find(&msgs).Error)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.MESSAGE_DIRECTION_IN, msgs[0].Direction)
	assert.False(t, msgs[0].Read)
	assert.Equal(t, models.MESSAGE_SENDER_BOT, msgs[1].Sender)

	assert.Len(t, sender.sent(), 2)
}

func TestProcessInboundQuoteFlowArmsDeferredHandoff(t *testing.T) {
	db, sender, scheduler := setupGateway(t, bot.INTENT_UNKNOWN)
	phone := "987654321"

	// elige "cotizar" en el menú
	require.NoError(t, ProcessInbound(context.Background(), inbound(phone, "cotizar")))
	assert.Len(t, sender.sent(), 1)
	assert.False(t, scheduler.Pending(phone))

	// manda los requerimientos: el bot calla y arma el timer
	require.NoError(t, ProcessInbound(context.Background(), inbound(phone, "500 sillas de oficina")))
	require.NoError(t, ProcessInbound(context.Background(), inbound(phone, "desde Guangzhou")))

	assert.Len(t, sender.sent(), 1, "el flujo de cotización no contesta mensaje a mensaje")
	assert.True(t, scheduler.Pending(phone))

	sess, err := services.Sessions.Get(phone)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, models.SESSION_STATE_PROCESANDO, sess.State)

	var data models.QuoteData
	require.NoError(t, sess.DecodeData(&data))
	assert.Equal(t, []string{"500 sillas de oficina", "desde Guangzhou"}, data.Messages)

	// los tres entrantes quedaron igual en el historial
	var count int
	require.NoError(t, db.Model(&models.ChatMessage{}).
		Where("direction = ?", models.MESSAGE_DIRECTION_IN).Count(&count).Error)
	assert.Equal(t, 3, count)
}

func TestProcessInboundAdvisorRequestHandsOffNow(t *testing.T) {
	db, sender, _ := setupGateway(t, bot.INTENT_ADVISOR)
	phone := "987654321"

	require.NoError(t, ProcessInbound(context.Background(), inbound(phone, "quiero hablar con alguien")))

	var lead models.Lead
	require.NoError(t, db.Where("phone = ?", phone).First(&lead).Error)
	assert.Equal(t, models.LEAD_STATE_PENDIENTE, lead.State)
	require.NotNil(t, lead.AsesorID)

	texts := sender.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Rosa")

	sess, err := services.Sessions.Get(phone)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, models.SESSION_STATE_DERIVADO, sess.State)
}

func TestProcessInboundBotSilentInAdvisorMode(t *testing.T) {
	db, sender, _ := setupGateway(t, bot.INTENT_GREETING)
	phone := "987654321"

	lead, _, err := services.ChatLog.GetOrCreateOpenLead(phone, "hola", "")
	require.NoError(t, err)
	require.NoError(t, services.ChatLog.TakeOver(lead.ID, 1))

	require.NoError(t, ProcessInbound(context.Background(), inbound(phone, "hola?")))

	// el mensaje queda en el historial pero el bot no contesta
	var count int
	require.NoError(t, db.Model(&models.ChatMessage{}).Where("lead_id = ?", lead.ID).Count(&count).Error)
	assert.Equal(t, 1, count)
	assert.Empty(t, sender.sent())
}

func TestProcessInboundInvalidPhone(t *testing.T) {
	setupGateway(t, bot.INTENT_UNKNOWN)
	assert.Error(t, ProcessInbound(context.Background(), inbound("abc", "hola")))
}

func TestWebhookVerifyHandshake(t *testing.T) {
	setupGateway(t, bot.INTENT_UNKNOWN)
	t.Setenv("WEBHOOK_VERIFY_TOKEN", "secreto")

	r := gin.New()
	r.GET("/api/webhook", WebhookVerify)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/webhook?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet,
		"/api/webhook?hub.mode=subscribe&hub.verify_token=otro&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookUpdateAlwaysAcks(t *testing.T) {
	setupGateway(t, bot.INTENT_UNKNOWN)
	t.Setenv("WEBHOOK_APP_SECRET", "")

	r := gin.New()
	r.POST("/api/webhook", WebhookUpdate)

	// JSON roto: se reconoce igual para frenar los reintentos de Meta
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{no es json"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())

	// payload sin mensajes (p. ej. statuses): también 200
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/webhook",
		strings.NewReader(`{"object":"whatsapp_business_account","entry":[]}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookUpdateProcessesBatch(t *testing.T) {
	db, _, _ := setupGateway(t, bot.INTENT_GREETING)
	t.Setenv("WEBHOOK_APP_SECRET", "")

	r := gin.New()
	r.POST("/api/webhook", WebhookUpdate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook",
		strings.NewReader(textPayload("51987654321", "Ana", "wamid.1", "hola")))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var lead models.Lead
	require.NoError(t, db.Where("phone = ?", "987654321").First(&lead).Error)
	var msgs []models.ChatMessage
	require.NoError(t, db.Where("lead_id = ?", lead.ID).Find(&msgs).Error)
	assert.Equal(t, "wamid.1", msgs[0].ProviderMessageID)
}

func TestWebhookUpdateSignatureCheck(t *testing.T) {
	setupGateway(t, bot.INTENT_UNKNOWN)
	t.Setenv("WEBHOOK_APP_SECRET", "app-secret")

	r := gin.New()
	r.POST("/api/webhook", WebhookUpdate)
	body := textPayload("51987654321", "Ana", "wamid.1", "hola")

	// sin firma → rechazado
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// firma válida → aceptado
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(body))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractMessagesKinds(t *testing.T) {
	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"contacts": [{"profile": {"name": "Ana"}, "wa_id": "51987654321"}],
			"messages": [
				{"from": "51987654321", "id": "m1", "type": "text", "text": {"body": "hola"}},
				{"from": "51987654321", "id": "m2", "type": "interactive",
				 "interactive": {"type": "list_reply", "list_reply": {"id": "cotizar", "title": "Cotizar un envío"}}},
				{"from": "51987654321", "id": "m3", "type": "image",
				 "image": {"id": "media-1", "mime_type": "image/jpeg"}},
				{"from": "51987654321", "id": "m4", "type": "document",
				 "document": {"id": "media-2", "mime_type": "application/pdf", "caption": "packing list"}},
				{"from": "51987654321", "id": "m5", "type": "sticker"}
			]
		}}]}]
	}`

	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &p))
	msgs := extractMessages(p)
	require.Len(t, msgs, 5)

	assert.Equal(t, "hola", msgs[0].Text)
	assert.Equal(t, "Ana", msgs[0].Name)

	assert.Equal(t, "cotizar", msgs[1].Text, "la respuesta de lista entra por el id de la opción")

	assert.Equal(t, models.CONTENT_TYPE_IMAGE, msgs[2].Kind)
	assert.Equal(t, "[imagen]", msgs[2].Text)
	assert.Equal(t, "media-1", msgs[2].MediaRef)

	assert.Equal(t, "packing list", msgs[3].Text)

	assert.Equal(t, models.CONTENT_TYPE_UNSUPPORTED, msgs[4].Kind)
}
