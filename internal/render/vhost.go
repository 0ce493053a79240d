package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/relaystack/relayctl/internal/config"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// VhostData parametrizes the reverse-proxy virtual host. Domains always
// comes from a single DomainSet so the server_name list and the
// certificate request cannot drift apart.
type VhostData struct {
	Domains      []string
	UpstreamPort int
	TLS          bool
	CertPath     string
	KeyPath      string
}

var vhostTemplate = template.Must(template.New("vhost").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`{{if .TLS}}server {
    listen 80;
    listen [::]:80;
    server_name {{join .Domains " "}};

    return 301 https://$host$request_uri;
}

server {
    listen 443 ssl;
    listen [::]:443 ssl;
    server_name {{join .Domains " "}};

    ssl_certificate {{.CertPath}};
    ssl_certificate_key {{.KeyPath}};
{{else}}server {
    listen 80;
    listen [::]:80;
    server_name {{join .Domains " "}};
{{end}}
    location / {
        proxy_pass http://127.0.0.1:{{.UpstreamPort}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`))

// Vhost renders the proxy vhost for the given domain set.
func Vhost(data VhostData) ([]byte, error) {
	if len(data.Domains) == 0 {
		return nil, relayerrors.NewValidationError("proxy vhost", "domain list is empty", nil)
	}
	if data.UpstreamPort <= 0 {
		return nil, relayerrors.NewValidationError("proxy vhost", "upstream port is not set", nil)
	}
	if data.TLS && (data.CertPath == "" || data.KeyPath == "") {
		return nil, relayerrors.NewValidationError("proxy vhost", "TLS requested without certificate paths", nil)
	}

	var buf bytes.Buffer
	if err := vhostTemplate.Execute(&buf, data); err != nil {
		return nil, relayerrors.NewValidationError("proxy vhost", "template execution failed", err)
	}
	return buf.Bytes(), nil
}

var serverNameRe = regexp.MustCompile(`(?m)^\s*server_name\s+([^;]+);`)

// ServerNames extracts every server_name directive's name list.
func ServerNames(content []byte) [][]string {
	var out [][]string
	for _, m := range serverNameRe.FindAllSubmatch(content, -1) {
		out = append(out, strings.Fields(string(m[1])))
	}
	return out
}

// ValidateVhost checks the structural invariants of a rendered vhost
// before any external tool sees it: every server_name directive covers
// exactly the domain set, and the upstream is wired in.
func ValidateVhost(content []byte, set config.DomainSet) error {
	names := ServerNames(content)
	if len(names) == 0 {
		return relayerrors.NewValidationError("proxy vhost", "no server_name directive", nil)
	}
	for i, list := range names {
		if !set.Covers(list) {
			return relayerrors.NewValidationError(
				"proxy vhost",
				fmt.Sprintf("server_name %d lists %v, want exactly %v", i+1, list, set.Names()),
				nil,
			)
		}
	}
	if !bytes.Contains(content, []byte("proxy_pass")) {
		return relayerrors.NewValidationError("proxy vhost", "no proxy_pass directive", nil)
	}
	return nil
}
