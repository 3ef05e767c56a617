package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/services/checkexport"
	"archive-inspector/internal/services/fscheck"
	"archive-inspector/internal/services/reportpdf"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "archive-inspector",
		"time":    time.Now().Unix(),
	})
}

// handleChecks 处理集合级操作：POST 创建 run，GET 列出 run。
func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.Requester) == "" {
			req.Requester = "system"
		}

		runID, err := s.engine.StartRun(r.Context(), req)
		if err != nil {
			if errors.Is(err, fscheck.ErrEmptyScope) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		run, err := s.engine.RunStatus(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, run)
	case http.MethodGet:
		requester := strings.TrimSpace(r.URL.Query().Get("requester"))
		activeOnly := parseBool(r.URL.Query().Get("active"), false)
		limit := parseInt(r.URL.Query().Get("limit"), 50)

		runs, err := s.store.ListRuns(r.Context(), requester, activeOnly, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		// 活跃 run 用跟踪器快照覆盖数据库投影，保证计数是实时的。
		for i := range runs {
			if runs[i].Status.Terminal() {
				continue
			}
			if live, err := s.engine.RunStatus(r.Context(), runs[i].RunID); err == nil {
				runs[i] = *live
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"checks": runs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCheckRoutes 分发 /api/checks/{run_id}[/{action}] 路由。
func (s *Server) handleCheckRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/checks/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	runID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleCheckStatus(w, r, runID)
	case "cancel":
		s.handleCheckCancel(w, r, runID)
	case "results":
		s.handleCheckResults(w, r, runID)
	case "summary":
		s.handleCheckSummary(w, r, runID)
	case "exports":
		s.handleCheckExports(w, r, runID)
	case "export":
		// /api/checks/{run_id}/export/{kind}
		kind := ""
		if len(parts) > 2 {
			kind = parts[2]
		}
		s.handleCheckExport(w, r, runID, kind)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.engine.RunStatus(r.Context(), runID)
	if err != nil {
		if errors.Is(err, fscheck.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCheckCancel(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := s.engine.Cancel(r.Context(), runID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "cancel_requested": true})
	case errors.Is(err, fscheck.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, fscheck.ErrRunFinished):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleCheckResults(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 100)
	status := model.FileStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	rows, err := s.store.ListResults(r.Context(), runID, status, page, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.store.CountResults(r.Context(), runID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if size < 1 {
		size = 100
	}
	totalPages := (total + int64(size) - 1) / int64(size)
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      runID,
		"page":        page,
		"size":        size,
		"total":       total,
		"total_pages": totalPages,
		"results":     rows,
	})
}

func (s *Server) handleCheckSummary(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := s.engine.Summary(r.Context(), runID)
	if err != nil {
		if errors.Is(err, fscheck.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCheckExports(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	exports, err := s.store.ListExports(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "exports": exports})
}

// handleCheckExport 支持两种形态：
// GET 直接把 CSV 流式写进响应体；POST 落盘并登记到 exports 表。
func (s *Server) handleCheckExport(w http.ResponseWriter, r *http.Request, runID, kind string) {
	status := model.FileStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	if r.Method == http.MethodGet && kind == "csv" {
		run, err := s.store.GetRun(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("run not found: %s", runID))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", runID+"_results.csv"))
		if _, err := checkexport.WriteCSV(r.Context(), s.store, runID, status, w); err != nil {
			// 响应头已经发出，只能中断传输。
			return
		}
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch kind {
	case "csv":
		res, err := checkexport.ExportToFile(r.Context(), s.store, checkexport.Options{
			RunID:     runID,
			Status:    status,
			ExportDir: s.opts.ExportDir,
			DBPath:    s.opts.DBPath,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "pdf":
		res, err := reportpdf.GenerateRunPDF(r.Context(), s.store, reportpdf.Options{
			RunID:     runID,
			ExportDir: s.opts.ExportDir,
			DBPath:    s.opts.DBPath,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string, def bool) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def
	}
	return s == "1" || s == "true" || s == "yes"
}
