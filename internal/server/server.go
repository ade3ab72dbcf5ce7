package server

import (
	"sync"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"
	"github.com/driftwatch/deltasync/internal/scheduler"

	"github.com/rs/zerolog"
)

// Server owns the background side of the process: the cron scheduler and
// whatever periodic work hangs off it. The HTTP listener runs separately.
type Server struct {
	log    zerolog.Logger
	config *domain.Config

	scheduler scheduler.Service

	stopWG sync.WaitGroup
	lock   sync.Mutex
}

func NewServer(log logger.Logger, config *domain.Config, scheduler scheduler.Service) *Server {
	return &Server{
		log:       log.With().Str("module", "server").Logger(),
		config:    config,
		scheduler: scheduler,
	}
}

func (s *Server) Start() error {
	s.scheduler.Start()

	return nil
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("Shutting down server")

	s.scheduler.Stop()
}
