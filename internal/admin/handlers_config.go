package admin

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/models"
	"gridserve/internal/repository"
)

// ConfigHandlers exposes the single-row runtime server configuration and
// bearer token issuance.
type ConfigHandlers struct {
	runtime *repository.RuntimeConfigRepository
	admins  *auth.AdminAuth
	logger  *zap.Logger
	now     func() time.Time
}

// NewConfigHandlers wires the configuration endpoints.
func NewConfigHandlers(runtime *repository.RuntimeConfigRepository, admins *auth.AdminAuth,
	logger *zap.Logger) *ConfigHandlers {
	return &ConfigHandlers{runtime: runtime, admins: admins, logger: logger, now: time.Now}
}

type runtimeConfigJSON struct {
	DcapPollrateSeconds      *int32 `json:"dcap_pollrate_seconds"`
	EdevlPollrateSeconds     *int32 `json:"edevl_pollrate_seconds"`
	FsalPollrateSeconds      *int32 `json:"fsal_pollrate_seconds"`
	DerplPollrateSeconds     *int32 `json:"derpl_pollrate_seconds"`
	DerlPollrateSeconds      *int32 `json:"derl_pollrate_seconds"`
	MupPostrateSeconds       *int32 `json:"mup_postrate_seconds"`
	SiteControlPow10Encoding *int32 `json:"site_control_pow10_encoding"`
	DisableEdevRegistration  *bool  `json:"disable_edev_registration"`
}

// GetRuntime is GET /config/runtime.
func (h *ConfigHandlers) GetRuntime(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("loading runtime config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load runtime config")
		return
	}
	writeJSON(w, http.StatusOK, runtimeConfigJSON{
		DcapPollrateSeconds:      cfg.DcapPollrateSeconds,
		EdevlPollrateSeconds:     cfg.EdevlPollrateSeconds,
		FsalPollrateSeconds:      cfg.FsalPollrateSeconds,
		DerplPollrateSeconds:     cfg.DerplPollrateSeconds,
		DerlPollrateSeconds:      cfg.DerlPollrateSeconds,
		MupPostrateSeconds:       cfg.MupPostrateSeconds,
		SiteControlPow10Encoding: cfg.SiteControlPow10Encoding,
		DisableEdevRegistration:  cfg.DisableEdevRegistration,
	})
}

// UpdateRuntime is POST /config/runtime. The row is upserted whole; omitted
// fields reset to their defaults.
func (h *ConfigHandlers) UpdateRuntime(w http.ResponseWriter, r *http.Request) {
	var body runtimeConfigJSON
	if !readJSON(w, r, &body) {
		return
	}
	err := h.runtime.Update(r.Context(), &models.RuntimeServerConfig{
		DcapPollrateSeconds:      body.DcapPollrateSeconds,
		EdevlPollrateSeconds:     body.EdevlPollrateSeconds,
		FsalPollrateSeconds:      body.FsalPollrateSeconds,
		DerplPollrateSeconds:     body.DerplPollrateSeconds,
		DerlPollrateSeconds:      body.DerlPollrateSeconds,
		MupPostrateSeconds:       body.MupPostrateSeconds,
		SiteControlPow10Encoding: body.SiteControlPow10Encoding,
		DisableEdevRegistration:  body.DisableEdevRegistration,
	}, h.now().UTC().Truncate(time.Microsecond))
	if err != nil {
		h.logger.Error("updating runtime config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update runtime config")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Token is POST /token: exchanges basic credentials for a short lived bearer
// token.
func (h *ConfigHandlers) Token(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok || !h.admins.CheckBasic(username, password) {
		w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.admins.IssueToken(username, time.Hour)
	if err != nil {
		h.logger.Error("issuing token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      token,
		"token_type": "Bearer",
	})
}
