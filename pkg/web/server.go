// Package web serves the cell over HTTP: a JSON command API and a
// websocket event stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/cell"
	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/registry"
	"github.com/gwillem/waferbot/pkg/robot"
	"github.com/gwillem/waferbot/pkg/store"
)

// Cell is the part of the cell the web surface drives.
type Cell interface {
	CurrentState() cell.State
	Poses(ctx context.Context) ([]robot.PoseData, error)
	FindPose(ctx context.Context, station string) (robot.PoseData, error)
	SavePose(ctx context.Context, pose robot.PoseData) error
	Registry() *registry.Registry
	Sequence(steps ...registry.Step) (*registry.Batch, error)
	Bus() *events.Bus
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	cell Cell
	log  *zap.SugaredLogger
}

// NewServer creates a server for c.
func NewServer(c Cell, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{cell: c, log: log}
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.apiState)
		r.Get("/poses", s.apiListPoses)
		r.Get("/poses/{station}", s.apiGetPose)
		r.Put("/poses/{station}", s.apiPutPose)
		r.Get("/commands", s.apiListCommands)
		r.Post("/commands/{name}", s.apiRunCommand)
		r.Post("/sequence", s.apiSequence)
	})
	r.Get("/ws", s.eventSocket)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Infof("web listening on http://%s", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve web: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) apiState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cell.CurrentState())
}

func (s *Server) apiListPoses(w http.ResponseWriter, r *http.Request) {
	poses, err := s.cell.Poses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if poses == nil {
		poses = []robot.PoseData{}
	}
	writeJSON(w, poses)
}

func (s *Server) apiGetPose(w http.ResponseWriter, r *http.Request) {
	pose, err := s.cell.FindPose(r.Context(), chi.URLParam(r, "station"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, pose)
}

func (s *Server) apiPutPose(w http.ResponseWriter, r *http.Request) {
	var pose robot.PoseData
	if err := json.NewDecoder(r.Body).Decode(&pose); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pose: "+err.Error())
		return
	}
	pose.Station = chi.URLParam(r, "station")
	if err := s.cell.SavePose(r.Context(), pose); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, pose)
}

type commandInfo struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
}

func (s *Server) apiListCommands(w http.ResponseWriter, r *http.Request) {
	var out []commandInfo
	for _, cmd := range s.cell.Registry().Commands() {
		out = append(out, commandInfo{Name: cmd.Name, Usage: cmd.Usage})
	}
	writeJSON(w, out)
}

// apiRunCommand runs one command and replies when it has finished. The body
// is an optional JSON object of arguments; non-string values are formatted.
func (s *Server) apiRunCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.cell.Registry().Lookup(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", name))
		return
	}

	args := registry.Args{}
	if r.ContentLength != 0 {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid arguments: "+err.Error())
			return
		}
		for k, v := range raw {
			args[k] = fmt.Sprint(v)
		}
	}

	if err := s.cell.Registry().Run(r.Context(), name, args); err != nil {
		s.log.Warnf("command %s: %v", name, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) apiSequence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []string `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequence: "+err.Error())
		return
	}
	steps := make([]registry.Step, 0, len(req.Steps))
	for _, line := range req.Steps {
		st, err := registry.ParseStep(line)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		steps = append(steps, st)
	}
	if _, err := s.cell.Sequence(steps...); err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, registry.ErrUnknownCommand) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "steps": strings.Join(req.Steps, "; ")})
}
