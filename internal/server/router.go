package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handlers gathers the per-area handler groups the router mounts.
type Handlers struct {
	Device        *DeviceHandlers
	DER           *DERHandlers
	DOE           *DOEHandlers
	Pricing       *PricingHandlers
	Metering      *MeteringHandlers
	Subscriptions *SubscriptionHandlers
	Responses     *ResponseHandlers
}

// NewRouter registers the CSIP-AUS endpoints. Secured routes are wrapped in
// the supplied client certificate middleware; /health and /version are not.
func NewRouter(h Handlers, secured func(http.Handler) http.Handler,
	db *sql.DB, version string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, secured(handler))
	}

	// GET patterns also match HEAD.
	register("GET /dcap", h.Device.DeviceCapability)
	register("GET /tm", h.Device.Time)

	register("GET /edev", h.Device.EndDeviceList)
	register("POST /edev", h.Device.RegisterEndDevice)
	register("GET /edev/{site}", h.Device.EndDevice)
	register("DELETE /edev/{site}", h.Device.DeleteEndDevice)
	register("GET /edev/{site}/rg", h.Device.Registration)
	register("GET /edev/{site}/cp", h.Device.ConnectionPoint)
	register("PUT /edev/{site}/cp", h.Device.PutConnectionPoint)
	register("POST /edev/{site}/cp", h.Device.PutConnectionPoint)
	register("GET /edev/{site}/fsa", h.Device.FSAList)
	register("GET /edev/{site}/fsa/{fsa}", h.Device.FSA)
	register("GET /edev/{site}/fsa/{fsa}/derp", h.DOE.FSAProgramList)

	register("GET /edev/{site}/der", h.DER.DERList)
	register("GET /edev/{site}/der/1", h.DER.DER)
	register("GET /edev/{site}/der/1/dercap", h.DER.Capability)
	register("PUT /edev/{site}/der/1/dercap", h.DER.PutCapability)
	register("GET /edev/{site}/der/1/derg", h.DER.Settings)
	register("PUT /edev/{site}/der/1/derg", h.DER.PutSettings)
	register("GET /edev/{site}/der/1/dera", h.DER.Availability)
	register("PUT /edev/{site}/der/1/dera", h.DER.PutAvailability)
	register("GET /edev/{site}/der/1/ders", h.DER.Status)
	register("PUT /edev/{site}/der/1/ders", h.DER.PutStatus)

	register("GET /edev/{site}/derp", h.DOE.ProgramList)
	register("GET /edev/{site}/derp/{group}", h.DOE.Program)
	register("GET /edev/{site}/derp/{group}/derc", h.DOE.ControlList)
	register("GET /edev/{site}/derp/{group}/derc/{doe}", h.DOE.Control)
	register("GET /edev/{site}/derp/{group}/actderc", h.DOE.ActiveControlList)
	register("GET /edev/{site}/derp/{group}/dderc", h.DOE.DefaultControl)

	register("GET /edev/{site}/tp", h.Pricing.TariffProfileList)
	register("GET /edev/{site}/tp/{tariff}", h.Pricing.TariffProfile)
	register("GET /edev/{site}/tp/{tariff}/rc", h.Pricing.RateComponentList)
	register("GET /edev/{site}/tp/{tariff}/rc/{day}/{price}", h.Pricing.RateComponent)
	register("GET /edev/{site}/tp/{tariff}/rc/{day}/{price}/tti", h.Pricing.TimeTariffIntervalList)
	register("GET /edev/{site}/tp/{tariff}/rc/{day}/{price}/tti/{rate}", h.Pricing.TimeTariffInterval)
	register("GET /edev/{site}/tp/{tariff}/rc/{day}/{price}/tti/{rate}/cti", h.Pricing.ConsumptionTariffIntervalList)
	register("GET /pricing/rt/{price}", h.Pricing.PricingReadingType)

	register("GET /mup", h.Metering.List)
	register("POST /mup", h.Metering.Create)
	register("GET /mup/{mup}", h.Metering.Get)
	register("DELETE /mup/{mup}", h.Metering.Delete)
	register("POST /mup/{mup}", h.Metering.PostReadings)

	register("GET /edev/{site}/sub", h.Subscriptions.List)
	register("POST /edev/{site}/sub", h.Subscriptions.Create)
	register("GET /edev/{site}/sub/{sub}", h.Subscriptions.Get)
	register("DELETE /edev/{site}/sub/{sub}", h.Subscriptions.Delete)

	register("GET /edev/{site}/rsps", h.Responses.SetList)
	register("GET /edev/{site}/rsps/{set}", h.Responses.Set)
	register("GET /edev/{site}/rsps/{set}/rsp", h.Responses.List)
	register("POST /edev/{site}/rsps/{set}/rsp", h.Responses.Create)
	register("GET /edev/{site}/rsps/{set}/rsp/{response}", h.Responses.Get)

	mux.HandleFunc("GET /health", healthHandler(db, logger))
	mux.HandleFunc("GET /version", versionHandler(version))

	return mux
}

func healthHandler(db *sql.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Warn("health check db ping failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"version": version})
	}
}
