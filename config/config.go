package config

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

type Configuration struct {
	ApiPort string `json:"api_port"`

	Database    string `json:"database"` // "sqlite3" o "postgres"
	DbHost      string `json:"db_host"`
	DbPort      string `json:"db_port"`
	DbUser      string `json:"db_user"`
	DbName      string `json:"db_name"`
	DbPass      string `json:"db_pass"`
	Automigrate bool   `json:"automigrate"`

	Bot struct {
		// Minutos de silencio antes de derivar una cotización a un asesor.
		GraceMinutes int `json:"grace_minutes"`
	} `json:"bot"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("No se pudo leer el archivo de configuración")
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Configuración inválida")
	}

	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.Bot.GraceMinutes <= 0 {
		c.Bot.GraceMinutes = 5
	}

	return c
}
