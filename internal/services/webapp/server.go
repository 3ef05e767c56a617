package webapp

import (
	"database/sql"
	"net/http"

	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/services/fscheck"
)

// Server 是 API 服务的运行时对象。
type Server struct {
	opts   Options
	db     *sql.DB
	store  *sqliteadapter.Store
	engine *fscheck.Engine
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/checks", s.handleChecks)
	mux.HandleFunc("/api/checks/", s.handleCheckRoutes)
}
