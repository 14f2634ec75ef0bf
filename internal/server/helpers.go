package server

import (
	"net/http"

	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/models"
	"gridserve/internal/repository"
)

// resolveSite loads the {site} path parameter and enforces the request
// scope's visibility over it. Inaccessible sites answer 404, not 403, so
// clients cannot probe for other aggregators' site ids.
func resolveSite(w http.ResponseWriter, r *http.Request, sites *repository.SiteRepository, logger *zap.Logger) (*models.Site, *auth.Scope, bool) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		logger.Error("request scope missing")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}

	siteID, ok := pathID(r, "site")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", logger)
		return nil, nil, false
	}

	site, err := sites.GetByID(r.Context(), siteID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", logger)
		return nil, nil, false
	}
	if err != nil {
		logger.Error("site lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}

	if !scope.VisibleSite(site.AggregatorID, site.SiteID) {
		writeSepError(w, r, http.StatusNotFound, "no such resource", logger)
		return nil, nil, false
	}
	return site, scope, true
}
