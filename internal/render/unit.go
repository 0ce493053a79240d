package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// UnitData parametrizes a systemd service unit for one application tier.
type UnitData struct {
	Description string
	After       []string
	Requires    []string
	User        string
	WorkingDir  string
	EnvFile     string
	ExecStart   string
	RestartSec  int
}

var unitTemplate = template.Must(template.New("unit").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`[Unit]
Description={{.Description}}
{{- if .After}}
After={{join .After " "}}
{{- end}}
{{- if .Requires}}
Requires={{join .Requires " "}}
{{- end}}

[Service]
Type=simple
User={{.User}}
WorkingDirectory={{.WorkingDir}}
{{- if .EnvFile}}
EnvironmentFile={{.EnvFile}}
{{- end}}
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec={{.RestartSec}}

[Install]
WantedBy=multi-user.target
`))

// Unit renders a systemd unit definition.
func Unit(data UnitData) ([]byte, error) {
	if data.ExecStart == "" {
		return nil, relayerrors.NewValidationError("service unit", "ExecStart is empty", nil)
	}
	if data.User == "" {
		return nil, relayerrors.NewValidationError("service unit", "User is empty", nil)
	}
	if data.RestartSec <= 0 {
		data.RestartSec = 5
	}

	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, data); err != nil {
		return nil, relayerrors.NewValidationError("service unit", "template execution failed", err)
	}
	return buf.Bytes(), nil
}

// ValidateUnit checks a rendered unit for the directives systemd needs to
// supervise a long-running process with restart-on-failure.
func ValidateUnit(content []byte) error {
	required := []string{"[Unit]", "[Service]", "[Install]", "ExecStart=", "Restart=on-failure"}
	for _, directive := range required {
		if !bytes.Contains(content, []byte(directive)) {
			return relayerrors.NewValidationError("service unit", fmt.Sprintf("missing %s", directive), nil)
		}
	}
	return nil
}
