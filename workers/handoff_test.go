package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"sofia/bot"
	"sofia/inbox"
	"sofia/models"
	"sofia/sessions"

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

func testScheduler(t *testing.T, grace time.Duration) (*Scheduler, *gorm.DB, *fakeSender) {
	t.Helper()
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
	s := NewScheduler(store, inbox.NewRouter(db), inbox.NewChatLog(db), sender, grace)
	return s, db, sender
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condición no alcanzada a tiempo")
}

func TestHandoffAssignsAndCoolsDownSession(t *testing.T) {
	s, db, sender := testScheduler(t, time.Minute)
	phone := "911111111"

	quote := models.QuoteData{
		Messages:     []string{"500 sillas de oficina", "desde Guangzhou"},
		LastActivity: time.Now(),
	}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))

	require.NoError(t, s.Handoff(phone))

	var lead models.Lead
	require.NoError(t, db.Where("phone = ?", phone).First(&lead).Error)
	assert.Equal(t, models.LEAD_STATE_PENDIENTE, lead.State)
	assert.Equal(t, "cotizacion", lead.Interest)
	assert.Equal(t, "500 sillas de oficina\ndesde Guangzhou", lead.InitialMessage)
	require.NotNil(t, lead.AsesorID)

	texts := sender.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Rosa")

	// ambos mensajes del bot quedaron en el historial
	var count int
	require.NoError(t, db.Model(&models.ChatMessage{}).Where("lead_id = ?", lead.ID).Count(&count).Error)
	assert.Equal(t, 2, count)

	sess, err := s.Sessions.Get(phone)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, models.SESSION_STATE_DERIVADO, sess.State)
	require.NotNil(t, sess.ExpiresAt)

	var data models.HandoffData
	require.NoError(t, sess.DecodeData(&data))
	assert.Equal(t, "Rosa", data.AsesorName)
}

func TestArmFiresAfterQuietWindow(t *testing.T) {
	s, db, _ := testScheduler(t, 40*time.Millisecond)
	phone := "911111111"

	quote := models.QuoteData{Messages: []string{"quiero cotizar fletes"}, LastActivity: time.Now()}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))

	s.Arm(phone)
	assert.True(t, s.Pending(phone))

	waitUntil(t, 2*time.Second, func() bool {
		sess, err := s.Sessions.Get(phone)
		return err == nil && sess != nil && sess.State == models.SESSION_STATE_DERIVADO
	})

	var lead models.Lead
	require.NoError(t, db.Where("phone = ?", phone).First(&lead).Error)
	assert.Equal(t, models.LEAD_STATE_PENDIENTE, lead.State)

	waitUntil(t, time.Second, func() bool { return !s.Pending(phone) })
}

func TestArmExtendsOnNewActivity(t *testing.T) {
	s, _, sender := testScheduler(t, 60*time.Millisecond)
	phone := "911111111"

	quote := models.QuoteData{Messages: []string{"uno"}, LastActivity: time.Now()}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))
	s.Arm(phone)

	// actividad nueva a mitad de la ventana: el timer no dispara todavía
	time.Sleep(30 * time.Millisecond)
	quote.Messages = append(quote.Messages, "dos")
	quote.LastActivity = time.Now()
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, sender.sent(), "derivó antes de cerrarse la ventana de silencio")

	waitUntil(t, 2*time.Second, func() bool { return len(sender.sent()) > 0 })

	// al final la consulta junta toda la ráfaga
	sess, err := s.Sessions.Get(phone)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, models.SESSION_STATE_DERIVADO, sess.State)
}

func TestArmIsNoOpWhileTimerAlive(t *testing.T) {
	s, _, sender := testScheduler(t, 50*time.Millisecond)
	phone := "911111111"

	quote := models.QuoteData{Messages: []string{"uno"}, LastActivity: time.Now()}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))

	s.Arm(phone)
	s.Arm(phone)
	s.Arm(phone)

	waitUntil(t, 2*time.Second, func() bool { return !s.Pending(phone) })

	// un solo timer → una sola derivación → dos mensajes del bot
	assert.Len(t, sender.sent(), 2)
}

func TestWatchAbandonsAfterAdvisorTakeover(t *testing.T) {
	s, db, sender := testScheduler(t, 40*time.Millisecond)
	phone := "911111111"

	quote := models.QuoteData{Messages: []string{"500 sillas de oficina"}, LastActivity: time.Now()}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))

	lead, created, err := s.Log.GetOrCreateOpenLead(phone, "500 sillas de oficina", "")
	require.NoError(t, err)
	require.True(t, created)

	s.Arm(phone)

	// un asesor toma el hilo antes de que cierre la ventana; TakeOver no
	// toca la sesión, el timer tiene que revalidar el modo del hilo
	require.NoError(t, s.Log.TakeOver(lead.ID, 1))

	waitUntil(t, 2*time.Second, func() bool { return !s.Pending(phone) })

	assert.Empty(t, sender.sent(), "el bot se metió en una conversación con asesor")

	var fresh models.Lead
	require.NoError(t, db.First(&fresh, lead.ID).Error)
	assert.Equal(t, models.LEAD_STATE_EN_GESTION, fresh.State)
	assert.Equal(t, models.LEAD_MODE_ASESOR, fresh.Mode)
}

func TestHandoffIsNoOpWithAdvisorOwnedLead(t *testing.T) {
	s, db, sender := testScheduler(t, time.Minute)
	phone := "911111111"

	lead, _, err := s.Log.GetOrCreateOpenLead(phone, "hola", "")
	require.NoError(t, err)
	require.NoError(t, s.Log.TakeOver(lead.ID, 1))

	require.NoError(t, s.Handoff(phone))

	assert.Empty(t, sender.sent())
	var fresh models.Lead
	require.NoError(t, db.First(&fresh, lead.ID).Error)
	assert.Equal(t, models.LEAD_STATE_EN_GESTION, fresh.State)
	assert.Equal(t, models.LEAD_MODE_ASESOR, fresh.Mode)
}

func TestWatchAbandonsWhenSessionLeavesQuoteFlow(t *testing.T) {
	s, db, sender := testScheduler(t, 40*time.Millisecond)
	phone := "911111111"

	quote := models.QuoteData{Messages: []string{"uno"}, LastActivity: time.Now()}
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_PROCESANDO, quote, 0))
	s.Arm(phone)

	// la sesión salió del flujo de cotización antes de que cierre la ventana
	require.NoError(t, s.Sessions.Update(phone, models.SESSION_STATE_MENU, nil, 0))

	waitUntil(t, 2*time.Second, func() bool { return !s.Pending(phone) })

	assert.Empty(t, sender.sent())
	var count int
	require.NoError(t, db.Model(&models.Lead{}).Count(&count).Error)
	assert.Equal(t, 0, count)
}
