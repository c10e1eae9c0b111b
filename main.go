package main

import (
	"os"
	"time"

	"sofia/bot"
	"sofia/config"
	"sofia/controllers"
	dbpkg "sofia/db"
	"sofia/inbox"
	"sofia/router"
	"sofia/sessions"
	"sofia/tools"
	"sofia/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Sobrescribe variables de entorno desde .env cuando exista.
	_ = godotenv.Load()

	tools.InitLogger()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg := config.Get(configPath)

	dbpkg.SetConfigurations(cfg)
	db, err := dbpkg.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("No se pudo inicializar la base de datos")
	}
	defer db.Close()

	wa, err := tools.NewWhatsAppClient()
	if err != nil {
		log.Fatal().Err(err).Msg("No se pudo configurar el cliente de WhatsApp")
	}

	store := sessions.NewStore(db)
	chatlog := inbox.NewChatLog(db)
	leadRouter := inbox.NewRouter(db)
	engine := bot.NewEngine(tools.ClassifyIntent)

	grace := time.Duration(cfg.Bot.GraceMinutes) * time.Minute
	scheduler := workers.NewScheduler(store, leadRouter, chatlog, wa, grace)

	controllers.Configure(controllers.Services{
		Sessions:  store,
		ChatLog:   chatlog,
		Router:    leadRouter,
		Engine:    engine,
		Scheduler: scheduler,
		Sender:    wa,
		Media:     wa,
	})

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(db))
	router.Initialize(r, cfg)

	log.Info().Str("port", cfg.ApiPort).Msg("Sofía escuchando")
	if err := r.Run(":" + cfg.ApiPort); err != nil {
		log.Fatal().Err(err).Msg("El servidor terminó con error")
	}
}
