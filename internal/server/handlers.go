package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

type askRequest struct {
	Question string `json:"question"`
}

type askSource struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type askResponse struct {
	Answer  string      `json:"answer"`
	Sources []askSource `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("ask request", zap.String("question", question))

	start := time.Now()
	answer, err := s.asker.Ask(r.Context(), question, nil)
	s.metrics.AskDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Asks.WithLabelValues("error").Inc()
		s.logger.Error("ask failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrGeneration) || errors.Is(err, models.ErrEncoding) {
			status = http.StatusBadGateway
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.metrics.Asks.WithLabelValues("ok").Inc()

	resp := askResponse{Answer: answer.Text, Sources: make([]askSource, 0, len(answer.CitedChunks))}
	for _, c := range answer.CitedChunks {
		resp.Sources = append(resp.Sources, askSource{Path: c.SourcePath, Text: c.Text})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type uploadResponse struct {
	Path      string `json:"path"`
	Documents int    `json:"documents"`
	Skipped   int    `json:"skipped"`
	Chunks    int    `json:"chunks"`
}

// handleUpload saves a multipart "file" into the source directory and ingests it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || !s.ingester.Accepts(name) {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported file type: "+header.Filename)
		return
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dst := filepath.Join(s.uploadDir, name)
	if err := writeFile(dst, file); err != nil {
		s.logger.Error("save upload failed", zap.String("path", dst), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "save upload failed")
		return
	}

	sum, err := s.ingester.IngestFile(r.Context(), dst)
	if err != nil {
		s.logger.Error("ingest upload failed", zap.String("path", dst), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordIngest(sum)
	if len(sum.Failures) > 0 {
		s.respondError(w, http.StatusUnprocessableEntity, sum.Failures[0].Err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, uploadResponse{
		Path:      dst,
		Documents: sum.Documents,
		Skipped:   sum.Skipped,
		Chunks:    sum.Chunks,
	})
}

func writeFile(dst string, src io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *Server) recordIngest(sum ingest.Summary) {
	s.metrics.IngestedDocs.Add(float64(sum.Documents))
	s.metrics.IngestedChunks.Add(float64(sum.Chunks))
	s.metrics.IngestFailures.Add(float64(len(sum.Failures)))
}

type statusResponse struct {
	Chunks         int    `json:"chunks"`
	Sources        int    `json:"sources"`
	Dimensions     int    `json:"dimensions"`
	Metric         string `json:"metric"`
	Encoder        string `json:"encoder"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	LLMVariant     string `json:"llm_variant"`
	LLMModel       string `json:"llm_model"`
	ContextTokens  int    `json:"context_tokens"`
	K              int    `json:"k"`
	Hybrid         bool   `json:"hybrid"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context())
	if err != nil {
		s.logger.Error("status: store info failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Chunks:        info.Count,
		Sources:       info.Sources,
		Dimensions:    info.Dimensions,
		Metric:        info.Metric,
		Encoder:       info.Encoder,
		LLMVariant:    string(s.cfg.LLM.Variant),
		LLMModel:      filepath.Base(s.cfg.LLM.ModelPath),
		ContextTokens: s.cfg.LLM.ContextTokens,
		K:             s.cfg.Retrieval.K,
		Hybrid:        s.cfg.Retrieval.Hybrid,
	}
	if n, err := s.store.DiskUsage(); err == nil {
		resp.DiskUsageBytes = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
