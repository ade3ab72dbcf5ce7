package http

import (
	"fmt"
	"net"
	"net/http"

	"github.com/driftwatch/deltasync/internal/config"
	"github.com/driftwatch/deltasync/internal/database"
	"github.com/driftwatch/deltasync/internal/logger"
	syncservice "github.com/driftwatch/deltasync/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type Server struct {
	log zerolog.Logger
	sse *sse.Server
	db  *database.DB

	config *config.AppConfig

	version string
	commit  string
	date    string

	syncService syncservice.Service
	counter     entityCounter

	apiTokenHash []byte
}

func NewServer(
	log logger.Logger,
	config *config.AppConfig,
	sse *sse.Server,
	db *database.DB,
	version string,
	commit string,
	date string,
	syncService syncservice.Service,
	counter entityCounter,
) Server {
	s := Server{
		log:     log.With().Str("module", "http").Logger(),
		config:  config,
		sse:     sse,
		db:      db,
		version: version,
		commit:  commit,
		date:    date,

		syncService: syncService,
		counter:     counter,
	}

	if token := config.Config.Auth.APIToken; token != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			s.log.Error().Err(err).Msg("could not hash API token, authentication disabled")
		} else {
			s.apiTokenHash = hash
		}
	}

	return s
}

func (s Server) Open() error {
	addr := fmt.Sprintf("%v:%v", s.config.Config.Server.Host, s.config.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := http.Server{
		Handler: s.Handler(),
	}

	s.log.Info().Msgf("Starting server. Listening on %s", listener.Addr().String())

	return server.Serve(listener)
}

func (s Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(&s.log))

	c := cors.New(cors.Options{
		AllowCredentials:   true,
		AllowedMethods:     []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowOriginFunc:    func(origin string) bool { return true },
		OptionsPassthrough: true,
	})

	r.Use(c.Handler)

	encoder := encoder{}

	r.Route("/api", func(r chi.Router) {
		r.Route("/healthz", newHealthHandler(encoder, s.db).Routes)

		r.Post("/v1/utils/client-id", s.handleGenerateClientID)

		authedRouter := r.Group(nil)
		authedRouter.Use(s.AuthenticateAPIToken)

		authedRouter.Route("/sync", newSyncHandler(encoder, s.syncService).Routes)
		authedRouter.Route("/status", newStatusHandler(encoder, s.counter, s.version, s.commit, s.date, s.config.Config.Sync.EntityTypes).Routes)

		authedRouter.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			// inject CORS headers to bypass checks
			s.sse.Headers = map[string]string{
				"Content-Type":      "text/event-stream",
				"Cache-Control":     "no-cache",
				"Connection":        "keep-alive",
				"X-Accel-Buffering": "no",
			}
			s.sse.ServeHTTP(w, r)
		})
	})

	return r
}
