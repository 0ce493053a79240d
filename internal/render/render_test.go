package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaystack/relayctl/internal/config"
)

func domainSet(t *testing.T) config.DomainSet {
	t.Helper()
	set, err := config.NewDomainSet("example.com")
	require.NoError(t, err)
	return set
}

func TestVhost_ServerNameCoversDomainSetExactly(t *testing.T) {
	t.Parallel()

	set := domainSet(t)
	content, err := Vhost(VhostData{Domains: set.Names(), UpstreamPort: 8080})
	require.NoError(t, err)

	names := ServerNames(content)
	require.Len(t, names, 1)
	assert.Equal(t, []string{"example.com", "dashboard.example.com", "control.example.com"}, names[0])
	require.NoError(t, ValidateVhost(content, set))
}

func TestVhost_TLSVariant(t *testing.T) {
	t.Parallel()

	set := domainSet(t)
	content, err := Vhost(VhostData{
		Domains:      set.Names(),
		UpstreamPort: 8080,
		TLS:          true,
		CertPath:     "/etc/letsencrypt/live/example.com/fullchain.pem",
		KeyPath:      "/etc/letsencrypt/live/example.com/privkey.pem",
	})
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "listen 443 ssl")
	assert.Contains(t, text, "ssl_certificate /etc/letsencrypt/live/example.com/fullchain.pem")
	assert.Contains(t, text, "return 301 https://")

	// Both the redirect block and the TLS block carry the full name set.
	names := ServerNames(content)
	require.Len(t, names, 2)
	for _, list := range names {
		assert.True(t, set.Covers(list))
	}
	require.NoError(t, ValidateVhost(content, set))
}

func TestVhost_RejectsIncompleteInput(t *testing.T) {
	t.Parallel()

	_, err := Vhost(VhostData{UpstreamPort: 8080})
	assert.Error(t, err, "no domains")

	_, err = Vhost(VhostData{Domains: []string{"example.com"}})
	assert.Error(t, err, "no upstream port")

	_, err = Vhost(VhostData{Domains: []string{"example.com"}, UpstreamPort: 8080, TLS: true})
	assert.Error(t, err, "TLS without cert paths")
}

func TestValidateVhost_DriftedNameList(t *testing.T) {
	t.Parallel()

	set := domainSet(t)
	drifted := []byte("server {\n    server_name example.com dashboard.example.com;\n    proxy_pass http://127.0.0.1:8080;\n}\n")
	err := ValidateVhost(drifted, set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_name")
}

func TestValidateVhost_NoServerName(t *testing.T) {
	t.Parallel()

	err := ValidateVhost([]byte("server {}\n"), domainSet(t))
	require.Error(t, err)
}

func TestUnit_RenderAndValidate(t *testing.T) {
	t.Parallel()

	content, err := Unit(UnitData{
		Description: "Relay worker",
		After:       []string{"network.target", "postgresql.service", "redis-server.service"},
		Requires:    []string{"postgresql.service"},
		User:        "relay",
		WorkingDir:  "/opt/relay/release",
		EnvFile:     "/etc/relay/relay.env",
		ExecStart:   "/opt/relay/release/bin/relay-bot",
		RestartSec:  5,
	})
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "Description=Relay worker")
	assert.Contains(t, text, "After=network.target postgresql.service redis-server.service")
	assert.Contains(t, text, "EnvironmentFile=/etc/relay/relay.env")
	assert.Contains(t, text, "Restart=on-failure")
	assert.Contains(t, text, "RestartSec=5")
	assert.Contains(t, text, "WantedBy=multi-user.target")
	require.NoError(t, ValidateUnit(content))
}

func TestUnit_MissingExecStart(t *testing.T) {
	t.Parallel()

	_, err := Unit(UnitData{User: "relay"})
	require.Error(t, err)
}

func TestValidateUnit_MissingRestartPolicy(t *testing.T) {
	t.Parallel()

	broken := []byte("[Unit]\n[Service]\nExecStart=/bin/true\n[Install]\n")
	err := ValidateUnit(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Restart=on-failure")
}

func TestEnvFile_RenderAndValidate(t *testing.T) {
	t.Parallel()

	content, err := EnvFile([]EnvPair{
		{Key: "DATABASE_URL", Value: "postgres://relay:pw@127.0.0.1:5432/relay"},
		{Key: "REDIS_ADDR", Value: "127.0.0.1:6379"},
		{Key: "WEB_PORT", Value: "8080"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "DATABASE_URL=postgres://relay:pw@127.0.0.1:5432/relay", lines[0])

	require.NoError(t, ValidateEnvFile(content, []string{"DATABASE_URL", "REDIS_ADDR", "WEB_PORT"}))
	require.Error(t, ValidateEnvFile(content, []string{"MISSING_KEY"}))
}

func TestEnvFile_RejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := EnvFile(nil)
	assert.Error(t, err)

	_, err = EnvFile([]EnvPair{{Key: "BAD KEY", Value: "x"}})
	assert.Error(t, err)

	_, err = EnvFile([]EnvPair{{Key: "KEY", Value: "line1\nline2"}})
	assert.Error(t, err)
}

func TestEnvFile_StableOutput(t *testing.T) {
	t.Parallel()

	pairs := []EnvPair{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}}
	first, err := EnvFile(pairs)
	require.NoError(t, err)
	second, err := EnvFile(pairs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
