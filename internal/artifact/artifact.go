package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaystack/relayctl/internal/logger"
	"github.com/relaystack/relayctl/pkg/diff"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

const defaultFileMode os.FileMode = 0o644

// Artifact identifies one unit of host configuration subject to guarded
// mutation: a proxy vhost, a unit file, an env file.
type Artifact struct {
	// Name is the logical identity used in logs and error messages.
	Name string
	// Path is the live location on disk.
	Path string
	// Mode is applied on create; existing permissions are preserved on
	// update unless ForceMode is set. Zero means defaultFileMode.
	Mode os.FileMode
	// ForceMode applies Mode on update too. Secret-bearing files use
	// this to repair permissions that have drifted open.
	ForceMode bool
	// BackupDir overrides where backups are written. Empty keeps them
	// next to the live file.
	BackupDir string
}

// Validator judges whether staged content can be activated without error,
// e.g. "nginx -t" or a structural directive check.
type Validator func(ctx context.Context) error

// Activator makes validated content take effect, e.g. reloading the
// owning service.
type Activator func(ctx context.Context) error

// Result describes a completed (or previewed) mutation.
type Result struct {
	Changed    bool
	Created    bool
	BackupPath string
	Diff       string
}

// Mutator applies guarded edits: snapshot, write, validate, activate,
// commit or roll back. Concurrent mutation of the same artifact is out of
// contract; the run-level advisory lock is the only exclusion in place.
type Mutator struct {
	log    *logger.Logger
	dryRun bool
}

// NewMutator builds a Mutator. With dryRun set, Apply previews the diff
// and never touches the filesystem.
func NewMutator(log *logger.Logger, dryRun bool) *Mutator {
	return &Mutator{log: log, dryRun: dryRun}
}

// Apply transitions art to newContent under the full guard sequence.
//
// Identical content short-circuits to an unchanged Result, which is what
// makes re-running a full provisioning sequence a safe no-op. On a
// validation or activation failure the live artifact is restored from the
// snapshot before the error is returned; if that restore itself fails the
// returned error says so and nothing pretends the host is consistent.
func (m *Mutator) Apply(ctx context.Context, art Artifact, newContent []byte, validate Validator, activate Activator) (Result, error) {
	if art.Path == "" {
		return Result{}, relayerrors.NewValidationError(art.Name, "artifact has no path", nil)
	}

	mode := art.Mode
	if mode == 0 {
		mode = defaultFileMode
	}

	current, exists, err := readCurrent(art.Path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", art.Path, err)
	}
	if exists && !art.ForceMode {
		info, statErr := os.Stat(art.Path)
		if statErr == nil {
			mode = info.Mode().Perm()
		}
	}

	if exists && bytes.Equal(current, newContent) {
		if art.ForceMode {
			if info, statErr := os.Stat(art.Path); statErr == nil && info.Mode().Perm() != mode {
				if m.dryRun {
					return Result{Changed: true}, nil
				}
				if err := os.Chmod(art.Path, mode); err != nil {
					return Result{}, fmt.Errorf("chmod %s: %w", art.Path, err)
				}
				m.log.WithFields(map[string]any{"artifact": art.Name}).Warn("tightened drifted permissions")
				return Result{Changed: true}, nil
			}
		}
		m.log.WithFields(map[string]any{"artifact": art.Name}).Debug("content already current, nothing to do")
		return Result{Changed: false}, nil
	}

	res := Result{
		Changed: true,
		Created: !exists,
		Diff:    diff.Unified(current, newContent, art.Path+" (live)", art.Path+" (proposed)"),
	}

	if m.dryRun {
		m.log.WithFields(map[string]any{"artifact": art.Name, "path": art.Path}).Info("dry-run preview\n" + res.Diff)
		return res, nil
	}

	if exists {
		backupPath, backupErr := writeBackup(art, current, mode)
		if backupErr != nil {
			return Result{}, fmt.Errorf("backup %s: %w", art.Name, backupErr)
		}
		res.BackupPath = backupPath
		m.log.WithFields(map[string]any{"artifact": art.Name, "backup": backupPath}).Debug("snapshot written")
	}

	if err := writeAtomic(art.Path, newContent, mode); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", art.Path, err)
	}

	if validate != nil {
		if valErr := validate(ctx); valErr != nil {
			if restoreErr := m.restore(art, res, mode); restoreErr != nil {
				return Result{}, fmt.Errorf("validation failed and rollback of %s also failed (%v): %w", art.Name, restoreErr, valErr)
			}
			var typed *relayerrors.ValidationError
			if errors.As(valErr, &typed) {
				return Result{}, valErr
			}
			return Result{}, relayerrors.NewValidationError(art.Name, valErr.Error(), valErr)
		}
	}

	if activate != nil {
		if actErr := activate(ctx); actErr != nil {
			if restoreErr := m.restore(art, res, mode); restoreErr != nil {
				return Result{}, fmt.Errorf("activation failed and rollback of %s also failed (%v): %w", art.Name, restoreErr, actErr)
			}
			// The restored content was live before, so re-activation is
			// expected to succeed; a failure here means the service is
			// broken independent of this mutation.
			if reErr := activate(ctx); reErr != nil {
				return Result{}, fmt.Errorf("activation failed, content restored, but re-activation of previous content also failed for %s (%v): %w", art.Name, reErr, actErr)
			}
			var typed *relayerrors.ActivationError
			if errors.As(actErr, &typed) {
				return Result{}, actErr
			}
			return Result{}, relayerrors.NewActivationError(art.Name, actErr.Error(), actErr)
		}
	}

	action := "updated"
	if res.Created {
		action = "created"
	}
	m.log.WithFields(map[string]any{"artifact": art.Name, "path": art.Path}).Info("artifact " + action)
	m.log.WithFields(map[string]any{"artifact": art.Name}).Debug(res.Diff)
	return res, nil
}

func (m *Mutator) restore(art Artifact, res Result, mode os.FileMode) error {
	if res.Created {
		return os.Remove(art.Path)
	}

	snapshot, err := os.ReadFile(res.BackupPath)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", res.BackupPath, err)
	}
	if err := writeAtomic(art.Path, snapshot, mode); err != nil {
		return fmt.Errorf("restore %s: %w", art.Path, err)
	}
	m.log.WithFields(map[string]any{"artifact": art.Name}).Warn("rolled back to snapshot")
	return nil
}

func readCurrent(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// writeBackup copies content to a timestamped slot and verifies the copy
// is byte-identical before the live file is touched. Backups accumulate;
// pruning is the operator's concern.
func writeBackup(art Artifact, content []byte, mode os.FileMode) (string, error) {
	targetDir := filepath.Dir(art.Path)
	if art.BackupDir != "" {
		targetDir = art.BackupDir
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(art.Path)
	stamp := time.Now().UTC().Format("20060102T150405")
	backupPath := filepath.Join(targetDir, fmt.Sprintf("%s.%s.bak", base, stamp))

	if err := os.WriteFile(backupPath, content, mode); err != nil {
		return "", err
	}

	written, err := os.ReadFile(backupPath)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(written, content) {
		return "", fmt.Errorf("snapshot %s does not match live content", backupPath)
	}

	return backupPath, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".relayctl-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
