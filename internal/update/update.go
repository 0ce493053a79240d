package update

import (
	"context"
	"errors"
	"fmt"
	"os"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/relaystack/relayctl/internal/logger"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Sync brings the release checkout at dir to the tip of branch, cloning
// when the checkout does not exist yet. It returns whether anything
// changed so callers can skip restarting services on a no-op update.
func Sync(ctx context.Context, repoURL, branch, dir string, log *logger.Logger) (bool, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return false, fmt.Errorf("open release checkout %s: %w", dir, err)
		}
		return clone(ctx, repoURL, branch, dir, log)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return false, fmt.Errorf("release checkout %s has no origin remote: %w", dir, err)
	}
	if urls := remote.Config().URLs; len(urls) > 0 && urls[0] != repoURL {
		return false, relayerrors.NewPreconditionError(
			"release checkout",
			fmt.Sprintf("%s tracks %s, config expects %s", dir, urls[0], repoURL),
			nil,
		)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, err
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.WithFields(map[string]any{"dir": dir}).Debug("release already up to date")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull %s: %w", repoURL, err)
	}

	log.WithFields(map[string]any{"dir": dir, "branch": branch}).Info("release updated")
	return true, nil
}

func clone(ctx context.Context, repoURL, branch, dir string, log *logger.Logger) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return false, fmt.Errorf("clone %s: %w", repoURL, err)
	}

	log.WithFields(map[string]any{"dir": dir, "branch": branch}).Info("release cloned")
	return true, nil
}
