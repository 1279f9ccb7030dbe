package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/extract"
)

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	URL    string         `json:"url"`
	Domain string         `json:"domain"`
	Result extract.Result `json:"result"`
}

// extractPage fetches one page and runs the extraction rule chain against it.
func (s *Server) extractPage(w http.ResponseWriter, r *http.Request) {
	if s.pages == nil || s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction not configured")
		return
	}

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	html, err := s.pages.FetchHTML(r.Context(), req.URL)
	if err != nil {
		s.logger.Warn("page fetch failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "fetch page: "+err.Error())
		return
	}

	result, err := s.extractor.Extract(html, u.Hostname())
	if err != nil {
		if errors.Is(err, extract.ErrNoContent) {
			writeError(w, http.StatusUnprocessableEntity, "no extractable content found")
			return
		}
		s.logger.Error("extraction failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "extract: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		URL:    req.URL,
		Domain: u.Hostname(),
		Result: result,
	})
}
