package diagnose

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/relaystack/relayctl/internal/artifact"
	"github.com/relaystack/relayctl/internal/config"
	"github.com/relaystack/relayctl/internal/render"
	"github.com/relaystack/relayctl/internal/service"
)

const dialTimeout = 500 * time.Millisecond

// Deps carries the live collaborators the standard checks need. The
// data-tier probes are closures so callers decide how connections are
// built and torn down.
type Deps struct {
	Controller *service.Controller
	Mutator    *artifact.Mutator

	// PingDatabase verifies the relational store answers.
	PingDatabase func(ctx context.Context) error
	// MissingTables reports schema tables that do not exist.
	MissingTables func(ctx context.Context) ([]string, error)
	// PingCache verifies the cache answers.
	PingCache func(ctx context.Context) error

	// RepairVhost re-renders and re-applies the proxy vhost through
	// the mutator, so a confirmed repair gets the full transaction.
	RepairVhost func(ctx context.Context) error
	// RepairUnits re-renders and re-installs the app unit files.
	RepairUnits func(ctx context.Context) error
}

// Checks assembles the standard check set for a host, in evaluation
// order: filesystem first, then configuration artifacts, then services
// and listeners, then the data tier.
func Checks(cfg *config.Config, domains config.DomainSet, deps Deps) []Check {
	checks := []Check{
		{
			Name:  "install root present",
			Probe: dirExists(cfg.InstallRoot),
			Repair: func(context.Context) error {
				return os.MkdirAll(cfg.InstallRoot, 0o755)
			},
		},
		{
			Name:  "release checkout present",
			Probe: dirExists(cfg.ReleaseDir()),
		},
		{
			Name:   "environment file permissions",
			Probe:  envFileStrict(cfg.EnvFile),
			Repair: rewriteEnvFileMode(cfg.EnvFile, deps.Mutator),
		},
		{
			Name:  "environment file encoding",
			Probe: validUTF8(cfg.EnvFile),
		},
		{
			Name:   "proxy vhost covers domain set",
			Probe:  vhostCovers(filepath.Join(cfg.Nginx.SitesAvailable, cfg.Name+".conf"), domains),
			Repair: deps.RepairVhost,
		},
		{
			Name:   "proxy vhost enabled",
			Probe:  fileExists(filepath.Join(cfg.Nginx.SitesEnabled, cfg.Name+".conf")),
			Repair: deps.RepairVhost,
		},
		{
			Name:   "app unit files installed",
			Probe:  unitsPresent(cfg),
			Repair: deps.RepairUnits,
		},
	}

	for _, svc := range cfg.StartOrder() {
		svc := svc
		checks = append(checks, Check{
			Name: "service active: " + svc,
			Probe: func(ctx context.Context) error {
				active, err := deps.Controller.IsActive(ctx, svc)
				if err != nil {
					return err
				}
				if !active {
					return fmt.Errorf("%s is not active", svc)
				}
				return nil
			},
			Repair: func(ctx context.Context) error {
				return deps.Controller.Start(ctx, svc)
			},
		})
	}

	for _, port := range []int{80, 443, cfg.Web.Port} {
		port := port
		checks = append(checks, Check{
			Name:  "listener on port " + strconv.Itoa(port),
			Probe: portListening(port),
		})
	}

	checks = append(checks,
		Check{Name: "database reachable", Probe: deps.PingDatabase},
		Check{
			Name: "database schema complete",
			Probe: func(ctx context.Context) error {
				missing, err := deps.MissingTables(ctx)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					return fmt.Errorf("missing tables: %v", missing)
				}
				return nil
			},
		},
		Check{Name: "cache reachable", Probe: deps.PingCache},
	)

	return checks
}

func dirExists(path string) func(context.Context) error {
	return func(context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s does not exist", path)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	}
}

func fileExists(path string) func(context.Context) error {
	return func(context.Context) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s does not exist", path)
		}
		return nil
	}
}

// envFileStrict requires the environment file to exist with owner-only
// permissions. It holds secrets, so group or world bits are drift.
func envFileStrict(path string) func(context.Context) error {
	return func(context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s does not exist", path)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			return fmt.Errorf("%s has mode %04o, want 0600", path, perm)
		}
		return nil
	}
}

// rewriteEnvFileMode rewrites the file with its current content and a
// forced 0600 mode, which routes the chmod through the mutator's
// backup and rollback machinery.
func rewriteEnvFileMode(path string, mutator *artifact.Mutator) func(context.Context) error {
	if mutator == nil {
		return nil
	}
	return func(ctx context.Context) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = mutator.Apply(ctx, artifact.Artifact{
			Name:      "environment file",
			Path:      path,
			Mode:      0o600,
			ForceMode: true,
		}, content, nil, nil)
		return err
	}
}

func validUTF8(path string) func(context.Context) error {
	return func(context.Context) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s does not exist", path)
		}
		decoded, err := unicode.UTF8.NewDecoder().Bytes(raw)
		if err != nil || !bytes.Equal(decoded, raw) {
			return fmt.Errorf("%s contains invalid UTF-8", path)
		}
		return nil
	}
}

func vhostCovers(path string, domains config.DomainSet) func(context.Context) error {
	return func(context.Context) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s does not exist", path)
		}
		return render.ValidateVhost(content, domains)
	}
}

func unitsPresent(cfg *config.Config) func(context.Context) error {
	return func(context.Context) error {
		for _, svc := range cfg.AppServices() {
			path := filepath.Join(cfg.UnitDir, svc)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%s does not exist", path)
			}
		}
		return nil
	}
}

func portListening(port int) func(context.Context) error {
	return func(context.Context) error {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return fmt.Errorf("nothing listening on %s", addr)
		}
		conn.Close()
		return nil
	}
}
