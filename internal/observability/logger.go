package observability

import (
	"github.com/danmuck/auctionctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process logger and tags it with the app name.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	log.Logger = log.Logger.With().Str("app", app).Logger()
	return log.Logger
}

// NewLogger returns a child of the global logger for one component.
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
