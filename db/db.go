package db

import (
	"path/filepath"

	"sofia/config"
	"sofia/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/rs/zerolog/log"
)

var conf config.Configuration

func SetConfigurations(configuration config.Configuration) {
	conf = configuration
}

// Connect abre la conexión con la base (sqlite3 por defecto) y corre el
// automigrate cuando AUTOMIGRATE=1.
func Connect() (*gorm.DB, error) {
	database := conf.Database
	if database == "" {
		database = "sqlite3"
	}

	var (
		db  *gorm.DB
		err error
	)

	if database == "postgres" || database == "postgresql" {
		log.Info().Str("host", conf.DbHost).Str("db", conf.DbName).Msg("Conectando a postgresql")
		path := "host=" + conf.DbHost + " port=" + conf.DbPort
		path += " user=" + conf.DbUser + " dbname=" + conf.DbName
		path += " password=" + conf.DbPass + " sslmode=disable"
		db, err = gorm.Open("postgres", path)
	} else {
		log.Info().Msg("Conectando a sqlite3")
		dir := filepath.Dir("db/database.db")
		db, err = gorm.Open("sqlite3", dir+"/database.db")
	}

	if err != nil {
		log.Error().Err(err).Msg("No se pudo conectar a la base de datos")
		return nil, err
	}

	if conf.Automigrate {
		db.AutoMigrate(
			&models.Agent{},
			&models.Customer{},
			&models.ConversationSession{},
			&models.Lead{},
			&models.ChatMessage{},
		)
	}

	return db, nil
}
