package config

import (
	"log"
	"os"
)

type Config struct {
	DatabaseURL  string
	DiscordGuild string

	// FleetFile: ruta del archivo jsonc con tokens y roles (ver fleet.go)
	FleetFile string
}

func Load() Config {
	get := func(k string, req bool) string {
		v := os.Getenv(k)
		if v == "" && req {
			log.Fatalf("faltante env %s", k)
		}
		return v
	}

	cfg := Config{
		DatabaseURL:  get("DATABASE_URL", true),
		DiscordGuild: get("DISCORD_GUILD_ID", true),
		FleetFile:    get("FLEET_CONFIG", false),
	}
	if cfg.FleetFile == "" {
		cfg.FleetFile = "fleet.jsonc"
	}
	return cfg
}
