package render

import (
	"bytes"
	"fmt"
	"strings"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// EnvPair is one KEY=VALUE entry in the environment file. Order is
// preserved so repeated renders are byte-stable.
type EnvPair struct {
	Key   string
	Value string
}

// EnvFile renders the secrets/connection environment file. Values are not
// quoted; systemd's EnvironmentFile parser takes the rest of the line
// verbatim.
func EnvFile(pairs []EnvPair) ([]byte, error) {
	if len(pairs) == 0 {
		return nil, relayerrors.NewValidationError("env file", "no entries", nil)
	}

	var buf bytes.Buffer
	for _, p := range pairs {
		key := strings.TrimSpace(p.Key)
		if key == "" || strings.ContainsAny(key, " =\n") {
			return nil, relayerrors.NewValidationError("env file", fmt.Sprintf("invalid key %q", p.Key), nil)
		}
		if strings.ContainsRune(p.Value, '\n') {
			return nil, relayerrors.NewValidationError("env file", fmt.Sprintf("value for %s contains a newline", key), nil)
		}
		fmt.Fprintf(&buf, "%s=%s\n", key, p.Value)
	}
	return buf.Bytes(), nil
}

// ValidateEnvFile checks that every required key is present in content.
func ValidateEnvFile(content []byte, requiredKeys []string) error {
	present := map[string]struct{}{}
	for _, line := range strings.Split(string(content), "\n") {
		if key, _, ok := strings.Cut(line, "="); ok {
			present[strings.TrimSpace(key)] = struct{}{}
		}
	}

	for _, key := range requiredKeys {
		if _, ok := present[key]; !ok {
			return relayerrors.NewValidationError("env file", fmt.Sprintf("missing required key %s", key), nil)
		}
	}
	return nil
}
