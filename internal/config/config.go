package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	ChannelSecret      string
	ChannelAccessToken string
	LineAPIBase        string
	StaffToken         string
	DefaultVenue       string
	Timezone           string

	RateLimitPerMinute      int
	RateLimitBurst          int
	VenueRateLimitPerMinute int
	VenueRateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	venue := os.Getenv("DEFAULT_VENUE")
	if venue == "" {
		venue = "main"
	}

	timezone := os.Getenv("TIMEZONE")
	if timezone == "" {
		timezone = "Asia/Tokyo"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		ChannelSecret:      os.Getenv("CHANNEL_SECRET"),
		ChannelAccessToken: os.Getenv("CHANNEL_ACCESS_TOKEN"),
		LineAPIBase:        os.Getenv("LINE_API_BASE"),
		StaffToken:         os.Getenv("STAFF_TOKEN"),
		DefaultVenue:       venue,
		Timezone:           timezone,

		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		VenueRateLimitPerMinute: readInt("VENUE_RATE_LIMIT_PER_MIN", 600),
		VenueRateLimitBurst:     readInt("VENUE_RATE_LIMIT_BURST", 120),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
