package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/analysis"
	"github.com/synheart/roomwatch/internal/generator"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{"/health", "/metrics", "/v1/devices", "/v1/readings"}
	if s.live != nil {
		endpoints = append(endpoints, "/live", "/live/sse")
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service":   "roomwatch",
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": s.engine.Devices()})
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	reading, err := s.engine.LatestReading(mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.GenerateDailyReport(mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	view := rep.View()
	if withTrends, _ := strconv.ParseBool(r.URL.Query().Get("trends")); withTrends {
		trends := s.trends()
		view.Trends = &trends
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, err := s.engine.GenerateDailyReport(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	trends := s.trends()
	filename := fmt.Sprintf("roomwatch_report_%s_%s.xlsx", id, rep.Date.Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteXLSX(w, rep, &trends); err != nil {
		s.logger.Error("Failed to write report workbook", zap.String("device_id", id), zap.Error(err))
	}
}

func (s *Server) trends() models.Trends {
	now := s.clock()
	return generator.TrendSeries(now, rand.New(rand.NewSource(now.UnixNano())))
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrUnknownDevice), errors.Is(err, analysis.ErrNoReadings):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
