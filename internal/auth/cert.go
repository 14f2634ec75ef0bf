package auth

import (
	"crypto/x509"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// CertMiddleware resolves the TLS-terminating proxy's forwarded certificate
// header into a request scope. The header may carry a full PEM certificate,
// a SHA-256 fingerprint, or a raw LFDI.
//
// A missing or malformed header is a proxy misconfiguration, not a client
// fault, and is answered 500. Expired and unassigned certificates get 403,
// except that unassigned certs fall back to device registration when enabled.
type CertMiddleware struct {
	Header                  string
	Registry                *Registry
	Sites                   *repository.SiteRepository
	AllowDeviceRegistration bool
	Logger                  *zap.Logger
	Now                     func() time.Time
}

func (m *CertMiddleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// Wrap installs the middleware around a device-facing handler.
func (m *CertMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(m.Header)
		if raw == "" {
			m.Logger.Error("forwarded certificate header missing", zap.String("header", m.Header))
			http.Error(w, "certificate header missing", http.StatusInternalServerError)
			return
		}

		lfdi, expiry, ok := m.identify(raw)
		if !ok {
			m.Logger.Error("forwarded certificate header malformed", zap.String("header", m.Header))
			http.Error(w, "certificate header malformed", http.StatusInternalServerError)
			return
		}
		if expiry != nil && !expiry.After(m.now()) {
			http.Error(w, "certificate expired", http.StatusForbidden)
			return
		}

		sfdi, err := sep2.SFDIFromLFDI(lfdi)
		if err != nil {
			m.Logger.Error("lfdi rejected", zap.Error(err))
			http.Error(w, "certificate header malformed", http.StatusInternalServerError)
			return
		}

		scope, status := m.resolveScope(r, lfdi, sfdi)
		if scope == nil {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}

// identify derives the client LFDI (and the cert expiry, when the full cert
// is forwarded) from the header value.
func (m *CertMiddleware) identify(raw string) (string, *time.Time, bool) {
	raw = strings.TrimSpace(raw)

	if der, ok := sep2.ExtractPEMCertificate(raw); ok {
		lfdi, err := sep2.LFDIFromPEM(raw)
		if err != nil {
			return "", nil, false
		}
		if cert, err := x509.ParseCertificate(der); err == nil {
			return lfdi, &cert.NotAfter, true
		}
		return lfdi, nil, true
	}
	if sep2.IsValidSHA256Hex(raw) {
		lfdi, err := sep2.LFDIFromFingerprint(raw)
		if err != nil {
			return "", nil, false
		}
		return lfdi, nil, true
	}
	if sep2.IsValidLFDI(raw) {
		return strings.ToLower(raw), nil, true
	}
	return "", nil, false
}

func (m *CertMiddleware) resolveScope(r *http.Request, lfdi string, sfdi int64) (*Scope, int) {
	details, err := m.Registry.Resolve(r.Context(), lfdi)
	if err == nil {
		if !details.Expiry.After(m.now()) {
			return nil, http.StatusForbidden
		}
		return &Scope{LFDI: lfdi, SFDI: sfdi, AggregatorID: details.AggregatorID}, 0
	}
	if err != repository.ErrNotFound {
		m.Logger.Error("cert registry lookup failed", zap.Error(err))
		return nil, http.StatusInternalServerError
	}

	if !m.AllowDeviceRegistration {
		return nil, http.StatusForbidden
	}

	// Unknown cert with device registration enabled: scope to the site
	// registered with this SFDI under the null aggregator, if any.
	scope := &Scope{LFDI: lfdi, SFDI: sfdi, DeviceCert: true}
	site, err := m.Sites.GetBySFDI(r.Context(), models.NullAggregatorID, sfdi)
	if err == nil {
		scope.SiteID = site.SiteID
	} else if err != repository.ErrNotFound {
		m.Logger.Error("device site lookup failed", zap.Error(err))
		return nil, http.StatusInternalServerError
	}
	return scope, 0
}
