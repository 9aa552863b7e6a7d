package httpapi

import (
	"net/http"
	"strings"

	"github.com/antoniostano/kirana/internal/catalog"
)

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var items []catalog.Entry
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		items = s.catalog.ByCategory(category)
	} else {
		items = s.catalog.Entries()
	}
	if items == nil {
		items = []catalog.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"store": s.catalog.Store(),
		"items": items,
	})
}

func (s *Server) handleStore(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Store())
}
