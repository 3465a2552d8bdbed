package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"agrirec/internal/domain"
	"agrirec/internal/logger"
	"go.uber.org/zap"
)

type recommendResponse struct {
	TopResults []domain.ScoredItem `json:"top_results"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Items      int    `json:"items"`
	Generation uint64 `json:"generation"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("top_k must be a positive integer, got %q", raw))
			return
		}
		topK = n
	}

	var p domain.QueryPayload
	if status, err := decodeBody(r, &p); err != nil {
		s.writeError(w, r, status, err.Error())
		return
	}

	results, err := s.deps.Recommend.Recommend(r.Context(), domain.NewQuery(p), topK)
	if err != nil {
		s.writeError(w, r, statusFor(err), err.Error())
		return
	}
	if results == nil {
		results = []domain.ScoredItem{}
	}
	s.writeJSON(w, r, http.StatusOK, recommendResponse{TopResults: results})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var p domain.ItemPayload
	if status, err := decodeBody(r, &p); err != nil {
		s.writeJSON(w, r, status, domain.IngestResult{Status: domain.StatusError, Message: err.Error()})
		return
	}

	result := s.deps.Ingest.ProcessAndAddItem(r.Context(), p)
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, r, status, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	corpus, err := s.deps.Catalog.Snapshot()
	if err != nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, healthResponse{
		Status:     "ok",
		Items:      corpus.Len(),
		Generation: corpus.Generation,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Catalog.Stats()
	if err != nil {
		s.writeError(w, r, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, stats)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) (int, error) {
	if r.Body == nil {
		return 0, nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return 0, nil
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusUnprocessableEntity, fmt.Errorf("invalid JSON body: %w", err)
	}
}

func statusFor(err error) int {
	var encErr *domain.EncodingError
	switch {
	case errors.Is(err, domain.ErrCorpusUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &encErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	s.writeJSON(w, r, status, errorResponse{Detail: detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response",
			zap.String(logger.FieldRequestID, RequestID(r.Context())),
			zap.Error(err),
		)
	}
}
