package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

const minimalConfig = `
name: relay
install_root: /opt/relay
domain: example.com
email: ops@example.com
release:
  repo: https://github.com/relaystack/relay
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "relay", cfg.Name)
	assert.Equal(t, "main", cfg.Release.Branch)
	assert.Equal(t, "nginx.service", cfg.Nginx.Service)
	assert.Equal(t, "postgresql.service", cfg.Database.Service)
	assert.Equal(t, "relay-web.service", cfg.Web.Service)
	assert.Equal(t, "relay-bot.service", cfg.Bot.Service)
	assert.Equal(t, "/etc/relay/relay.env", cfg.EnvFile)
	assert.Equal(t, "/opt/relay/backups", cfg.BackupDir)
	assert.Equal(t, "/etc/systemd/system", cfg.UnitDir)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var pre *relayerrors.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestLoad_InvalidDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		domain string
	}{
		{"no dot", "localhost"},
		{"leading dash", "-bad.example.com"},
		{"underscore", "bad_name.example.com"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			content := `
name: relay
install_root: /opt/relay
domain: "` + tt.domain + `"
email: ops@example.com
release:
  repo: https://github.com/relaystack/relay
`
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)

			var valErr *relayerrors.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestLoad_InvalidUnitName(t *testing.T) {
	t.Parallel()

	content := minimalConfig + `
web:
  service: "not a unit"
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
}

func TestStartOrder_DataTierFirstProxyLast(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	order := cfg.StartOrder()
	require.Len(t, order, 5)
	assert.Equal(t, "postgresql.service", order[0])
	assert.Equal(t, "redis-server.service", order[1])
	assert.Equal(t, "nginx.service", order[len(order)-1])
}

func TestResolveSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	t.Setenv("RELAY_DB_PASSWORD", "")
	_, err = cfg.ResolveSecrets()
	require.Error(t, err)
	var pre *relayerrors.PreconditionError
	assert.ErrorAs(t, err, &pre, "missing secret must be a fatal precondition")

	t.Setenv("RELAY_DB_PASSWORD", "s3cret")
	secrets, err := cfg.ResolveSecrets()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secrets.DBPassword)
	assert.Contains(t, cfg.Database.DSN(secrets.DBPassword), "s3cret")
}

func TestDatabaseDSN_EncodesSpecialCharacters(t *testing.T) {
	t.Parallel()

	db := Database{Host: "127.0.0.1", Port: 5432, Name: "relay", User: "relay"}
	dsn := db.DSN("p@ss/w:rd#1")

	u, err := url.Parse(dsn)
	require.NoError(t, err)

	pass, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss/w:rd#1", pass, "password must round-trip through the DSN")
	assert.Equal(t, "relay", u.User.Username())
	assert.Equal(t, "127.0.0.1:5432", u.Host)
	assert.Equal(t, "/relay", u.Path)
}

func TestNewDomainSet(t *testing.T) {
	t.Parallel()

	set, err := NewDomainSet("Example.COM")
	require.NoError(t, err)

	assert.Equal(t, "example.com", set.Primary())
	assert.Equal(t, []string{"example.com", "dashboard.example.com", "control.example.com"}, set.Names())
}

func TestDomainSet_Covers(t *testing.T) {
	t.Parallel()

	set, err := NewDomainSet("example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		names []string
		want  bool
	}{
		{"exact", []string{"example.com", "dashboard.example.com", "control.example.com"}, true},
		{"reordered", []string{"control.example.com", "example.com", "dashboard.example.com"}, true},
		{"missing one", []string{"example.com", "dashboard.example.com"}, false},
		{"extra name", []string{"example.com", "dashboard.example.com", "control.example.com", "mail.example.com"}, false},
		{"wrong name", []string{"example.com", "dashboard.example.com", "mail.example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, set.Covers(tt.names))
		})
	}
}

func TestNewDomainSet_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewDomainSet("  ")
	require.Error(t, err)
}
