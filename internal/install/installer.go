package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/relaystack/relayctl/internal/artifact"
	"github.com/relaystack/relayctl/internal/config"
	"github.com/relaystack/relayctl/internal/lockfile"
	"github.com/relaystack/relayctl/internal/logger"
	"github.com/relaystack/relayctl/internal/render"
	"github.com/relaystack/relayctl/internal/runner"
	"github.com/relaystack/relayctl/internal/service"
	"github.com/relaystack/relayctl/internal/step"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

const certbotTimeout = 3 * time.Minute

// State tracks one step through the run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// StepRecord is the per-step outcome in a RunReport.
type StepRecord struct {
	Label string
	State State
	Err   error
}

// RunReport records the whole provisioning run in order.
type RunReport struct {
	Steps []StepRecord
}

// Failed reports whether any step failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Steps {
		if s.State == StateFailed {
			return true
		}
	}
	return false
}

// Deps carries the collaborators the installer composes. The data-tier
// closures exist so tests can run the sequence without a live database
// or cache.
type Deps struct {
	Runner     runner.Runner
	Controller *service.Controller
	Mutator    *artifact.Mutator
	Executor   *step.Executor
	Log        *logger.Logger

	// DryRun previews the sequence without touching the host. Config
	// artifacts report their diffs through the Mutator; every other
	// mutation is announced and skipped.
	DryRun bool

	EnsureSchema func(ctx context.Context) error
	ProbeCache   func(ctx context.Context) error
	SyncRelease  func(ctx context.Context) (bool, error)
}

// Installer composes the end-to-end provisioning sequence. It owns the
// DomainSet for the run; every proxy and TLS artifact derives from it.
type Installer struct {
	cfg     *config.Config
	domains config.DomainSet
	deps    Deps

	secrets config.Secrets
}

// New derives the run's DomainSet and builds an Installer.
func New(cfg *config.Config, deps Deps) (*Installer, error) {
	domains, err := config.NewDomainSet(cfg.Domain)
	if err != nil {
		return nil, err
	}
	return &Installer{cfg: cfg, domains: domains, deps: deps}, nil
}

// Domains exposes the run's domain set.
func (ins *Installer) Domains() config.DomainSet {
	return ins.domains
}

// Run executes the full sequence under the advisory run lock. A failed
// step (after the executor's retry mediation) halts the sequence; the
// report shows the halted steps as pending.
func (ins *Installer) Run(ctx context.Context) (*RunReport, error) {
	// A preview takes no lock: creating the lock file is itself a
	// mutation, and a preview must work on a host it cannot write to.
	if !ins.deps.DryRun {
		release, err := lockfile.Acquire(ins.cfg.LockPath())
		if err != nil {
			return nil, err
		}
		defer release() //nolint:errcheck
	}

	steps := ins.Steps()
	report := &RunReport{Steps: make([]StepRecord, len(steps))}
	for i, s := range steps {
		report.Steps[i] = StepRecord{Label: s.Label, State: StatePending}
	}

	for i, s := range steps {
		report.Steps[i].State = StateRunning
		if err := ins.deps.Executor.Run(ctx, s); err != nil {
			report.Steps[i].State = StateFailed
			report.Steps[i].Err = err
			return report, err
		}
		report.Steps[i].State = StateSucceeded
	}

	return report, nil
}

// Steps returns the ordered provisioning sequence. Every action checks
// current state before mutating, so re-running the sequence on a
// provisioned host only applies intentional changes.
func (ins *Installer) Steps() []step.Step {
	return []step.Step{
		{Label: "check prerequisites", Action: ins.checkPrerequisites},
		{Label: "create directories", Action: ins.createDirectories},
		{Label: "sync release checkout", Action: ins.syncRelease},
		{Label: "write environment file", Action: ins.writeEnvFile},
		{Label: "ensure database schema", Action: ins.ensureSchema},
		{Label: "probe cache", Action: ins.probeCache},
		{Label: "configure proxy vhost", Action: ins.configureVhost},
		{Label: "issue TLS certificate", Action: ins.issueCertificate},
		{Label: "configure TLS vhost", Action: ins.configureTLSVhost},
		{Label: "install service units", Action: ins.installUnits},
		{Label: "enable and start services", Action: ins.startServices},
		{Label: "configure firewall", Action: ins.configureFirewall},
	}
}

func (ins *Installer) checkPrerequisites(ctx context.Context) error {
	for _, binary := range []string{"systemctl", "nginx", "certbot"} {
		if _, err := ins.deps.Runner.LookPath(binary); err != nil {
			return err
		}
	}

	secrets, err := ins.cfg.ResolveSecrets()
	if err != nil {
		return err
	}
	ins.secrets = secrets
	return nil
}

func (ins *Installer) createDirectories(ctx context.Context) error {
	dirs := []string{
		ins.cfg.InstallRoot,
		ins.cfg.ReleaseDir(),
		ins.cfg.BackupDir,
		filepath.Join(ins.cfg.InstallRoot, "logs"),
		filepath.Dir(ins.cfg.EnvFile),
	}
	for _, dir := range dirs {
		if ins.deps.DryRun {
			ins.deps.Log.WithFields(map[string]any{"dir": dir}).Info("dry-run: directory would be created")
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (ins *Installer) syncRelease(ctx context.Context) error {
	if ins.deps.DryRun {
		ins.deps.Log.WithFields(map[string]any{
			"repo":   ins.cfg.Release.Repo,
			"branch": ins.cfg.Release.Branch,
		}).Info("dry-run: release checkout would be synced")
		return nil
	}
	_, err := ins.deps.SyncRelease(ctx)
	return err
}

func (ins *Installer) envPairs() []render.EnvPair {
	pairs := []render.EnvPair{
		{Key: "DATABASE_URL", Value: ins.cfg.Database.DSN(ins.secrets.DBPassword)},
		{Key: "REDIS_ADDR", Value: ins.cfg.Cache.Addr},
		{Key: "WEB_PORT", Value: strconv.Itoa(ins.cfg.Web.Port)},
		{Key: "LOG_DIR", Value: filepath.Join(ins.cfg.InstallRoot, "logs")},
	}
	if ins.secrets.CachePassword != "" {
		pairs = append(pairs, render.EnvPair{Key: "REDIS_PASSWORD", Value: ins.secrets.CachePassword})
	}
	return pairs
}

// requiredEnvKeys are what both application tiers read at start.
func requiredEnvKeys() []string {
	return []string{"DATABASE_URL", "REDIS_ADDR", "WEB_PORT"}
}

func (ins *Installer) writeEnvFile(ctx context.Context) error {
	content, err := render.EnvFile(ins.envPairs())
	if err != nil {
		return err
	}

	art := artifact.Artifact{
		Name:      "environment file",
		Path:      ins.cfg.EnvFile,
		Mode:      0o600,
		ForceMode: true,
		BackupDir: ins.cfg.BackupDir,
	}
	validate := func(context.Context) error {
		live, readErr := os.ReadFile(art.Path)
		if readErr != nil {
			return readErr
		}
		return render.ValidateEnvFile(live, requiredEnvKeys())
	}

	_, err = ins.deps.Mutator.Apply(ctx, art, content, validate, nil)
	return err
}

func (ins *Installer) ensureSchema(ctx context.Context) error {
	if ins.deps.DryRun {
		ins.deps.Log.WithFields(map[string]any{"database": ins.cfg.Database.Name}).Info("dry-run: schema would be ensured")
		return nil
	}
	return ins.deps.EnsureSchema(ctx)
}

func (ins *Installer) probeCache(ctx context.Context) error {
	return ins.deps.ProbeCache(ctx)
}

func (ins *Installer) vhostPath() string {
	return filepath.Join(ins.cfg.Nginx.SitesAvailable, ins.cfg.Name+".conf")
}

func (ins *Installer) applyVhost(ctx context.Context, withTLS bool) error {
	data := render.VhostData{
		Domains:      ins.domains.Names(),
		UpstreamPort: ins.cfg.Web.Port,
		TLS:          withTLS,
	}
	if withTLS {
		data.CertPath = ins.cfg.TLS.CertPath(ins.domains.Primary())
		data.KeyPath = ins.cfg.TLS.KeyPath(ins.domains.Primary())
	}

	content, err := render.Vhost(data)
	if err != nil {
		return err
	}
	if err := render.ValidateVhost(content, ins.domains); err != nil {
		return err
	}

	art := artifact.Artifact{
		Name:      "proxy vhost",
		Path:      ins.vhostPath(),
		BackupDir: ins.cfg.BackupDir,
	}
	validate := func(vctx context.Context) error {
		res, runErr := ins.deps.Runner.Run(vctx, "nginx", "-t")
		if runErr != nil {
			return runErr
		}
		if !res.Ok() {
			return relayerrors.NewValidationError("proxy vhost", res.Output(), runner.ExecErrorFromResult(res))
		}
		return nil
	}
	activate := func(actx context.Context) error {
		return ins.deps.Controller.Reload(actx, ins.cfg.Nginx.Service)
	}

	res, err := ins.deps.Mutator.Apply(ctx, art, content, validate, activate)
	if err != nil {
		return err
	}

	linkChanged, err := ins.enableVhost()
	if err != nil {
		return err
	}
	// Symlink drift alone never dirties the artifact, so Apply skips its
	// activator; nginx keeps serving the old enabled state until reloaded.
	if linkChanged && !res.Changed {
		return ins.deps.Controller.Reload(ctx, ins.cfg.Nginx.Service)
	}
	return nil
}

// enableVhost links the vhost into sites-enabled, replacing a stale link
// or a regular file squatting on the link's path. It reports whether the
// enabled state changed.
func (ins *Installer) enableVhost() (bool, error) {
	link := filepath.Join(ins.cfg.Nginx.SitesEnabled, ins.cfg.Name+".conf")
	target := ins.vhostPath()

	if current, err := os.Readlink(link); err == nil && current == target {
		return false, nil
	}

	if ins.deps.DryRun {
		ins.deps.Log.WithFields(map[string]any{"link": link, "target": target}).Info("dry-run: vhost would be linked into sites-enabled")
		return false, nil
	}

	if err := os.MkdirAll(ins.cfg.Nginx.SitesEnabled, 0o755); err != nil {
		return false, err
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return false, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.Symlink(target, link); err != nil {
		return false, err
	}
	return true, nil
}

func (ins *Installer) configureVhost(ctx context.Context) error {
	// Once a certificate exists the TLS vhost is authoritative; writing
	// the plain-HTTP variant here would flip the artifact back and forth
	// on every re-run.
	if ins.certificateReady() {
		ins.deps.Log.Debug("certificate present, plain vhost step skipped")
		return nil
	}
	return ins.applyVhost(ctx, false)
}

func (ins *Installer) configureTLSVhost(ctx context.Context) error {
	return ins.applyVhost(ctx, true)
}

// ReapplyVhost re-renders the proxy vhost for the current certificate
// state and re-applies it, symlink included. Drift repair uses this so
// remediation gets the same backup, validate and rollback treatment as
// provisioning.
func (ins *Installer) ReapplyVhost(ctx context.Context) error {
	return ins.applyVhost(ctx, ins.certificateReady())
}

// ReinstallUnits re-renders and re-installs the app unit files.
func (ins *Installer) ReinstallUnits(ctx context.Context) error {
	return ins.installUnits(ctx)
}

func (ins *Installer) certificateReady() bool {
	primary := ins.domains.Primary()
	for _, path := range []string{ins.cfg.TLS.CertPath(primary), ins.cfg.TLS.KeyPath(primary)} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// issueCertificate treats the certificate bundle as a config artifact
// whose validation is "issuance succeeded and the files exist". Issuance
// is a network call, so it runs under its own deadline.
func (ins *Installer) issueCertificate(ctx context.Context) error {
	if ins.certificateReady() {
		ins.deps.Log.WithFields(map[string]any{"domain": ins.domains.Primary()}).Debug("certificate bundle present, issuance skipped")
		return nil
	}

	if ins.deps.DryRun {
		ins.deps.Log.WithFields(map[string]any{"domains": ins.domains.Names()}).Info("dry-run: certificate would be requested")
		return nil
	}

	args := []string{"certonly", "--nginx", "-n", "--agree-tos", "-m", ins.cfg.Email}
	for _, name := range ins.domains.Names() {
		args = append(args, "-d", name)
	}

	certCtx, cancel := context.WithTimeout(ctx, certbotTimeout)
	defer cancel()

	res, err := ins.deps.Runner.Run(certCtx, "certbot", args...)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewValidationError("tls bundle", res.Output(), runner.ExecErrorFromResult(res))
	}
	if !ins.certificateReady() {
		return relayerrors.NewValidationError("tls bundle", "certbot succeeded but certificate files are missing", nil)
	}
	return nil
}

func (ins *Installer) unitSpecs() []struct {
	Service string
	Data    render.UnitData
} {
	after := []string{"network.target", ins.cfg.Database.Service, ins.cfg.Cache.Service}
	requires := []string{ins.cfg.Database.Service}
	binDir := filepath.Join(ins.cfg.ReleaseDir(), "bin")

	return []struct {
		Service string
		Data    render.UnitData
	}{
		{
			Service: ins.cfg.Bot.Service,
			Data: render.UnitData{
				Description: ins.cfg.Name + " worker",
				After:       after,
				Requires:    requires,
				User:        ins.cfg.Name,
				WorkingDir:  ins.cfg.ReleaseDir(),
				EnvFile:     ins.cfg.EnvFile,
				ExecStart:   filepath.Join(binDir, ins.cfg.Name+"-bot"),
				RestartSec:  5,
			},
		},
		{
			Service: ins.cfg.Web.Service,
			Data: render.UnitData{
				Description: ins.cfg.Name + " web frontend",
				After:       after,
				Requires:    requires,
				User:        ins.cfg.Name,
				WorkingDir:  ins.cfg.ReleaseDir(),
				EnvFile:     ins.cfg.EnvFile,
				ExecStart:   filepath.Join(binDir, ins.cfg.Name+"-web"),
				RestartSec:  5,
			},
		},
	}
}

func (ins *Installer) installUnits(ctx context.Context) error {
	changed := false
	for _, spec := range ins.unitSpecs() {
		content, err := render.Unit(spec.Data)
		if err != nil {
			return err
		}
		if err := render.ValidateUnit(content); err != nil {
			return err
		}

		art := artifact.Artifact{
			Name:      spec.Service + " unit",
			Path:      filepath.Join(ins.cfg.UnitDir, spec.Service),
			BackupDir: ins.cfg.BackupDir,
		}
		validate := ins.unitValidator(art.Path)

		res, err := ins.deps.Mutator.Apply(ctx, art, content, validate, nil)
		if err != nil {
			return err
		}
		changed = changed || res.Changed
	}

	if changed {
		if ins.deps.DryRun {
			ins.deps.Log.Info("dry-run: systemd would reload unit definitions")
			return nil
		}
		return ins.deps.Controller.DaemonReload(ctx)
	}
	return nil
}

// unitValidator runs systemd-analyze verify when the host has it; the
// structural check already ran before the write.
func (ins *Installer) unitValidator(path string) artifact.Validator {
	return func(ctx context.Context) error {
		if _, err := ins.deps.Runner.LookPath("systemd-analyze"); err != nil {
			return nil
		}
		res, err := ins.deps.Runner.Run(ctx, "systemd-analyze", "verify", path)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return relayerrors.NewValidationError(filepath.Base(path), res.Output(), runner.ExecErrorFromResult(res))
		}
		return nil
	}
}

func (ins *Installer) startServices(ctx context.Context) error {
	if ins.deps.DryRun {
		ins.deps.Log.WithFields(map[string]any{"services": ins.cfg.StartOrder()}).Info("dry-run: services would be enabled and started")
		return nil
	}
	for _, svc := range ins.cfg.StartOrder() {
		if err := ins.deps.Controller.Enable(ctx, svc); err != nil {
			return err
		}
	}
	return ins.deps.Controller.StartAll(ctx, ins.cfg.StartOrder())
}

func (ins *Installer) configureFirewall(ctx context.Context) error {
	if _, err := ins.deps.Runner.LookPath("ufw"); err != nil {
		ins.deps.Log.Warn("ufw not installed, firewall configuration skipped")
		return nil
	}
	if ins.deps.DryRun {
		ins.deps.Log.Info("dry-run: firewall would allow OpenSSH, 80/tcp and 443/tcp")
		return nil
	}

	for _, rule := range [][]string{
		{"allow", "OpenSSH"},
		{"allow", "80/tcp"},
		{"allow", "443/tcp"},
	} {
		res, err := ins.deps.Runner.Run(ctx, "ufw", rule...)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return runner.ExecErrorFromResult(res)
		}
	}
	return nil
}
