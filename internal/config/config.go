package config

import "time"

// Database holds the shared Postgres settings.
type Database struct {
	DSN         string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxConns    int    `yaml:"max_conns" env:"DATABASE_MAX_CONNS"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

// Redis holds the shared redis settings.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
}

// Broker holds the AMQP settings used by anything that enqueues or consumes
// notification tasks.
type Broker struct {
	URL           string `yaml:"url" env:"BROKER_URL"`
	CheckQueue    string `yaml:"check_queue" env:"BROKER_CHECK_QUEUE"`
	TransmitQueue string `yaml:"transmit_queue" env:"BROKER_TRANSMIT_QUEUE"`
}

// Defaulted fills in queue names when the config leaves them blank.
func (b *Broker) Defaulted() {
	if b.CheckQueue == "" {
		b.CheckQueue = "notify.check"
	}
	if b.TransmitQueue == "" {
		b.TransmitQueue = "notify.transmit"
	}
}

// Server configures the device facing CSIP-AUS API.
type Server struct {
	HTTPAddr string   `yaml:"http_addr" env:"HTTP_ADDR"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Broker   Broker   `yaml:"broker"`

	// Header populated by the TLS terminating proxy with the client cert
	// PEM, SHA-256 fingerprint or raw LFDI.
	CertHeader string `yaml:"cert_header" env:"CERT_HEADER"`

	// Prefix applied to every href generated in responses (for deployments
	// behind a path-rewriting proxy).
	HrefPrefix string `yaml:"href_prefix" env:"HREF_PREFIX"`

	// When true, clients presenting an unrecognised (non aggregator) cert
	// may register themselves as standalone devices.
	AllowDeviceRegistration bool `yaml:"allow_device_registration" env:"ALLOW_DEVICE_REGISTRATION"`

	// NMI validation pattern groups. Each entry is a semicolon-joined group
	// of regexes that must all match (include) / must not all match (exclude).
	NMIIncludes []string `yaml:"nmi_includes" env:"NMI_INCLUDES"`
	NMIExcludes []string `yaml:"nmi_excludes" env:"NMI_EXCLUDES"`

	// How long resolved client certificate identities are cached.
	CertCacheTTL time.Duration `yaml:"cert_cache_ttl" env:"CERT_CACHE_TTL"`

	// IANA timezone assigned to newly registered sites.
	DefaultTimezone string `yaml:"default_timezone" env:"DEFAULT_TIMEZONE"`
}

// Defaulted fills in workable defaults for anything unset.
func (c *Server) Defaulted() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8000"
	}
	if c.CertHeader == "" {
		c.CertHeader = "x-forwarded-client-cert"
	}
	if c.CertCacheTTL <= 0 {
		c.CertCacheTTL = 5 * time.Minute
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "Australia/Brisbane"
	}
	c.Broker.Defaulted()
}

// AdminUser is a static basic-auth user for the admin API.
type AdminUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Admin configures the operator facing API.
type Admin struct {
	HTTPAddr string   `yaml:"http_addr" env:"HTTP_ADDR"`
	Database Database `yaml:"database"`
	Broker   Broker   `yaml:"broker"`

	Users []AdminUser `yaml:"users" env:"-"`

	// Optional HS256 bearer token support. Empty secret disables it.
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
}

// Defaulted fills in workable defaults for anything unset.
func (c *Admin) Defaulted() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8001"
	}
	c.Broker.Defaulted()
}

// Notifier configures the subscription notification worker.
type Notifier struct {
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Broker   Broker   `yaml:"broker"`

	// Same href prefix the server uses so subscribedResource hrefs align.
	HrefPrefix string `yaml:"href_prefix" env:"HREF_PREFIX"`

	TransmitTimeout time.Duration `yaml:"transmit_timeout" env:"TRANSMIT_TIMEOUT"`

	// How often the redis retry queue is polled for due transmissions.
	RetryPollInterval time.Duration `yaml:"retry_poll_interval" env:"RETRY_POLL_INTERVAL"`
}

// Defaulted fills in workable defaults for anything unset.
func (c *Notifier) Defaulted() {
	if c.TransmitTimeout <= 0 {
		c.TransmitTimeout = 30 * time.Second
	}
	if c.RetryPollInterval <= 0 {
		c.RetryPollInterval = time.Second
	}
	c.Broker.Defaulted()
}
