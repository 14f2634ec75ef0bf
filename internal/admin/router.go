package admin

import (
	"database/sql"
	"net/http"
)

// Handlers groups the operator API handler sets for routing.
type Handlers struct {
	Aggregators *AggregatorHandlers
	Sites       *SiteHandlers
	Controls    *ControlHandlers
	Tariffs     *TariffHandlers
	Logs        *LogHandlers
	Config      *ConfigHandlers
}

// NewRouter builds the operator API route table. Every route except /health
// and /token sits behind the auth guard.
func NewRouter(h Handlers, secured func(http.Handler) http.Handler, db *sql.DB) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, secured(handler))
	}

	register("GET /aggregator", h.Aggregators.List)
	register("POST /aggregator", h.Aggregators.Create)
	register("GET /aggregator/{aggregator}", h.Aggregators.Get)
	register("POST /aggregator/{aggregator}/domain", h.Aggregators.AddDomain)
	register("GET /aggregator/{aggregator}/certificate", h.Aggregators.AssignedCertificates)
	register("POST /aggregator/{aggregator}/certificate", h.Aggregators.AssignCertificate)
	register("DELETE /aggregator/{aggregator}/certificate/{certificate}", h.Aggregators.UnassignCertificate)

	register("GET /certificate", h.Aggregators.ListCertificates)
	register("POST /certificate", h.Aggregators.CreateCertificate)
	register("GET /certificate/{certificate}", h.Aggregators.GetCertificate)
	register("PUT /certificate/{certificate}", h.Aggregators.UpdateCertificate)
	register("DELETE /certificate/{certificate}", h.Aggregators.DeleteCertificate)

	register("GET /site", h.Sites.List)
	register("GET /site/{site}", h.Sites.Get)
	register("DELETE /site/{site}", h.Sites.Delete)
	register("GET /site_group", h.Sites.Groups)
	register("GET /site_group/{name}", h.Sites.Group)
	register("GET /site_reading/csip_aus/{site}/{period_start}/{period_end}", h.Sites.Readings)

	register("GET /site_control_group", h.Controls.ListGroups)
	register("POST /site_control_group", h.Controls.CreateGroup)
	register("GET /site_control_group/{group}", h.Controls.GetGroup)
	register("GET /site_control_group/{group}/site_control", h.Controls.ListControls)
	register("POST /site_control_group/{group}/site_control", h.Controls.UpsertControls)
	register("DELETE /site_control_group/{group}/site_control/range/{period_start}/{period_end}", h.Controls.DeleteControlRange)
	register("GET /site_control_default/{site}", h.Controls.GetDefault)
	register("POST /site_control_default/{site}", h.Controls.SetDefault)

	register("GET /tariff", h.Tariffs.List)
	register("POST /tariff", h.Tariffs.Create)
	register("GET /tariff/{tariff}", h.Tariffs.Get)
	register("PUT /tariff/{tariff}", h.Tariffs.Update)
	register("POST /tariff/{tariff}/rate", h.Tariffs.UpsertRates)

	register("POST /calculation_log", h.Logs.CreateCalculationLog)
	register("GET /calculation_log/{log}", h.Logs.GetCalculationLog)
	register("GET /calculation_log/period/{period_start}/{period_end}", h.Logs.ListCalculationLogs)

	register("GET /archive/{period_start}/{period_end}/sites", h.Logs.ArchivedSites)
	register("GET /archive/{period_start}/{period_end}/does", h.Logs.ArchivedControls)
	register("GET /archive/{period_start}/{period_end}/rates", h.Logs.ArchivedRates)

	register("GET /subscription/{subscription}/transmit_log", h.Logs.TransmitLogs)

	register("GET /config/runtime", h.Config.GetRuntime)
	register("POST /config/runtime", h.Config.UpdateRuntime)

	// Token issuance authenticates with basic credentials itself.
	mux.HandleFunc("POST /token", h.Config.Token)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
