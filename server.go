package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"gregoryjjb/blinker/blink"
	"gregoryjjb/blinker/gpio"
)

var srvlog zerolog.Logger

func init() {
	srvlog = log.With().Str("component", "server").Logger()
}

/////////////////////
// Response helpers

func RespondInternalServiceError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}

func RespondBadRequest(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	RespondText(w, message)
}

func RespondText(w http.ResponseWriter, body string) {
	w.Write([]byte(body))
}

func RespondJSON(w http.ResponseWriter, body any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		RespondInternalServiceError(w, err)
	}
}

//go:embed www/index.html
var indexTemplateEmbed string

// maxPeriodBody bounds the PUT /api/period body; a period is a few digits.
const maxPeriodBody = 64

// Control requests drive the GPIO line, so they share one token bucket.
const (
	controlRate  = rate.Limit(20)
	controlBurst = 20
)

type Server struct {
	config          *Config
	controller      *blink.Controller
	history         *History
	onHardwareError func(error)
	limiter         *rate.Limiter
}

func NewServer(config *Config, controller *blink.Controller, history *History, onHardwareError func(error)) *Server {
	return &Server{
		config:          config,
		controller:      controller,
		history:         history,
		onHardwareError: onHardwareError,
		limiter:         rate.NewLimiter(controlRate, controlBurst),
	}
}

// throttle rejects requests with 429 once the limiter runs dry.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respondControlError reports a failed control request. Hardware errors
// also go through the session's error policy.
func (s *Server) respondControlError(w http.ResponseWriter, err error) {
	var werr *gpio.WriteError
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, blink.ErrPeriodOutOfRange):
		RespondBadRequest(w, err.Error())
	case errors.As(err, &werr):
		RespondInternalServiceError(w, err)
		if s.onHardwareError != nil {
			s.onHardwareError(err)
		}
	default:
		RespondInternalServiceError(w, err)
	}
}

func (s *Server) control(op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(); err != nil {
			s.respondControlError(w, err)
			return
		}
		RespondJSON(w, s.controller.State())
	}
}

func (s *Server) Handler() (http.Handler, error) {
	indexTemplate, err := template.New("index.html").Parse(indexTemplateEmbed)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(&srvlog))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache, no-store")
		if err := indexTemplate.Execute(w, s.controller.State()); err != nil {
			srvlog.Err(err).Msg("Failed to render index")
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, s.controller.State())
		})

		r.Group(func(r chi.Router) {
			r.Use(throttle(s.limiter))

			r.Post("/start", s.control(s.controller.Start))
			r.Post("/stop", s.control(s.controller.Stop))
			r.Post("/toggle", s.control(s.controller.Toggle))
			r.Put("/period", s.setPeriod)
		})

		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, s.history.Events())
		})

		r.Get("/events", createWebsocketHandler(s.controller))
	})

	return r, nil
}

func (s *Server) setPeriod(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeriodBody))
	if err != nil {
		RespondBadRequest(w, err.Error())
		return
	}

	lo, hi := s.config.Bounds()
	period, err := ParsePeriod(string(body), lo, hi)
	if err != nil {
		s.respondControlError(w, err)
		return
	}

	s.control(func() error {
		return s.controller.SetPeriod(period)
	})(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// ready is called once the listener is bound.
func (s *Server) ListenAndServe(ctx context.Context, ready func()) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	address := s.config.Address()
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	srvlog.Info().Str("listen", ln.Addr().String()).Msg("launching server")
	if ready != nil {
		ready()
	}

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
