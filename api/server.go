package api

import (
	"context"
	"errors"
	"evsim/internal"
	"evsim/internal/config"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	logger     internal.LogHandler
}

func NewServer(conf *config.Config, handler *Handler, logger internal.LogHandler) *Server {
	router := httprouter.New()
	handler.Register(router)
	return &Server{
		conf:   conf,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Listen serves the control API until ctx is done.
func (s *Server) Listen(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
	s.logger.Debug(fmt.Sprintf("api listening on %s", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
