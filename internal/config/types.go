package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Subdomains generated for every deployment. The dashboard and control
// panels are served from dedicated names on the same certificate.
var defaultSubdomains = []string{"dashboard", "control"}

// Config is the explicit configuration struct threaded into every
// component. There are no process-wide defaults besides what Load fills in.
type Config struct {
	Name        string `yaml:"name" validate:"required,min=1,max=64"`
	InstallRoot string `yaml:"install_root" validate:"required"`

	Domain string `yaml:"domain" validate:"required,dnsname"`
	Email  string `yaml:"email" validate:"required,email"`

	Release  Release  `yaml:"release"`
	Nginx    Nginx    `yaml:"nginx"`
	TLS      TLS      `yaml:"tls"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Web      Web      `yaml:"web"`
	Bot      Bot      `yaml:"bot"`

	EnvFile   string `yaml:"env_file,omitempty"`
	BackupDir string `yaml:"backup_dir,omitempty"`
	UnitDir   string `yaml:"unit_dir,omitempty"`
}

// Release points at the application source the update flow tracks.
type Release struct {
	Repo   string `yaml:"repo" validate:"required,url"`
	Branch string `yaml:"branch,omitempty"`
}

// Nginx holds reverse-proxy filesystem layout and control points.
type Nginx struct {
	SitesAvailable string `yaml:"sites_available,omitempty"`
	SitesEnabled   string `yaml:"sites_enabled,omitempty"`
	Service        string `yaml:"service,omitempty" validate:"omitempty,unitname"`
}

// TLS holds certificate issuance parameters. LiveDir follows the certbot
// layout: the bundle for a domain lives under <LiveDir>/<domain>/.
type TLS struct {
	LiveDir string `yaml:"live_dir,omitempty"`
}

// CertPath is the full-chain certificate location for domain.
func (t TLS) CertPath(domain string) string {
	return filepath.Join(t.LiveDir, domain, "fullchain.pem")
}

// KeyPath is the private key location for domain.
func (t TLS) KeyPath(domain string) string {
	return filepath.Join(t.LiveDir, domain, "privkey.pem")
}

// Database holds PostgreSQL connection parameters. The password is never
// stored in the config file; PasswordEnv names the environment variable
// that must supply it.
type Database struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Name        string `yaml:"name,omitempty"`
	User        string `yaml:"user,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	Service     string `yaml:"service,omitempty" validate:"omitempty,unitname"`
}

// DSN builds a PostgreSQL connection URL with the resolved password.
// The password is externally supplied and may contain URL metacharacters,
// so it goes through proper userinfo encoding.
func (d Database) DSN(password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

// Cache holds Redis connection parameters.
type Cache struct {
	Addr        string `yaml:"addr,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	Service     string `yaml:"service,omitempty" validate:"omitempty,unitname"`
}

// Web configures the HTTP frontend process.
type Web struct {
	Port    int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Service string `yaml:"service,omitempty" validate:"omitempty,unitname"`
}

// Bot configures the worker process.
type Bot struct {
	Service string `yaml:"service,omitempty" validate:"omitempty,unitname"`
}

func (c *Config) applyDefaults() {
	if c.Release.Branch == "" {
		c.Release.Branch = "main"
	}
	if c.Nginx.SitesAvailable == "" {
		c.Nginx.SitesAvailable = "/etc/nginx/sites-available"
	}
	if c.Nginx.SitesEnabled == "" {
		c.Nginx.SitesEnabled = "/etc/nginx/sites-enabled"
	}
	if c.Nginx.Service == "" {
		c.Nginx.Service = "nginx.service"
	}
	if c.TLS.LiveDir == "" {
		c.TLS.LiveDir = "/etc/letsencrypt/live"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = c.Name
	}
	if c.Database.User == "" {
		c.Database.User = c.Name
	}
	if c.Database.PasswordEnv == "" {
		c.Database.PasswordEnv = "RELAY_DB_PASSWORD"
	}
	if c.Database.Service == "" {
		c.Database.Service = "postgresql.service"
	}
	if c.Cache.Addr == "" {
		c.Cache.Addr = "127.0.0.1:6379"
	}
	if c.Cache.Service == "" {
		c.Cache.Service = "redis-server.service"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Service == "" {
		c.Web.Service = c.Name + "-web.service"
	}
	if c.Bot.Service == "" {
		c.Bot.Service = c.Name + "-bot.service"
	}
	if c.EnvFile == "" {
		c.EnvFile = filepath.Join("/etc", c.Name, c.Name+".env")
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.InstallRoot, "backups")
	}
	if c.UnitDir == "" {
		c.UnitDir = "/etc/systemd/system"
	}
}

// ReleaseDir is where the update flow keeps the application checkout.
func (c *Config) ReleaseDir() string {
	return filepath.Join(c.InstallRoot, "release")
}

// LockPath is the advisory lock guarding a whole run.
func (c *Config) LockPath() string {
	return filepath.Join(c.InstallRoot, c.Name+"ctl.lock")
}

// StartOrder lists managed services data tier first, proxy last. StopAll
// walks the same list in reverse.
func (c *Config) StartOrder() []string {
	return []string{
		c.Database.Service,
		c.Cache.Service,
		c.Bot.Service,
		c.Web.Service,
		c.Nginx.Service,
	}
}

// AppServices lists the two application units the update flow restarts.
func (c *Config) AppServices() []string {
	return []string{c.Bot.Service, c.Web.Service}
}

// Secrets resolves all externally supplied secrets. Missing secrets are a
// fatal precondition; the tool never falls back to a built-in default.
type Secrets struct {
	DBPassword    string
	CachePassword string
}

// ResolveSecrets reads the configured environment variables. The database
// password is mandatory; the cache password only when PasswordEnv is set.
func (c *Config) ResolveSecrets() (Secrets, error) {
	var s Secrets

	s.DBPassword = os.Getenv(c.Database.PasswordEnv)
	if s.DBPassword == "" {
		return Secrets{}, relayerrors.NewPreconditionError(
			"secrets",
			fmt.Sprintf("environment variable %s must supply the database password", c.Database.PasswordEnv),
			nil,
		)
	}

	if c.Cache.PasswordEnv != "" {
		s.CachePassword = os.Getenv(c.Cache.PasswordEnv)
		if s.CachePassword == "" {
			return Secrets{}, relayerrors.NewPreconditionError(
				"secrets",
				fmt.Sprintf("environment variable %s must supply the cache password", c.Cache.PasswordEnv),
				nil,
			)
		}
	}

	return s, nil
}

// DomainSet groups the DNS names that must stay consistent across the
// proxy server_name list and the certificate request. It is derived once
// per run and never mutated afterwards.
type DomainSet struct {
	primary string
	names   []string
}

// NewDomainSet derives the full name set from the primary domain.
func NewDomainSet(primary string) (DomainSet, error) {
	primary = strings.ToLower(strings.TrimSpace(primary))
	if primary == "" {
		return DomainSet{}, relayerrors.NewValidationError("domain", "primary domain is empty", nil)
	}

	names := make([]string, 0, len(defaultSubdomains)+1)
	names = append(names, primary)
	for _, sub := range defaultSubdomains {
		names = append(names, sub+"."+primary)
	}
	return DomainSet{primary: primary, names: names}, nil
}

// Primary returns the bare domain.
func (d DomainSet) Primary() string {
	return d.primary
}

// Names returns every name in the set, primary first. The slice is a copy.
func (d DomainSet) Names() []string {
	return append([]string(nil), d.names...)
}

// Covers reports whether names is exactly this set, order-insensitively.
// The proxy artifact and the certificate request must both satisfy it.
func (d DomainSet) Covers(names []string) bool {
	if len(names) != len(d.names) {
		return false
	}
	want := append([]string(nil), d.names...)
	got := make([]string, len(names))
	for i, n := range names {
		got[i] = strings.ToLower(strings.TrimSpace(n))
	}
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
