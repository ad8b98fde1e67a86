// Package dependencies centralizes default construction of shared
// collaborators so command builders can accept injected fakes in tests while
// falling back to production implementations at runtime.
package dependencies

import (
	"io"

	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/charms"
	"github.com/canonical/charm-analysis/internal/execshell"
	"github.com/canonical/charm-analysis/internal/gitrepo"
	"github.com/canonical/charm-analysis/internal/ui"
)

// ResolveCommandObserver returns a console observer when human readable
// logging is active and nil otherwise.
func ResolveCommandObserver(outputWriter io.Writer, humanReadableLoggingEnabled bool) execshell.CommandEventObserver {
	if !humanReadableLoggingEnabled {
		return nil
	}
	return ui.NewConsoleCommandObserver(outputWriter)
}

// ResolveShellExecutor constructs a shell executor reporting lifecycle events to the observer.
func ResolveShellExecutor(logger *zap.Logger, observer execshell.CommandEventObserver) (*execshell.ShellExecutor, error) {
	commandRunner := execshell.NewOSCommandRunner()
	return execshell.NewShellExecutorWithObserver(logger, commandRunner, observer)
}

// ResolveGitExecutor returns the provided executor or constructs a shell-backed default.
func ResolveGitExecutor(existing gitrepo.GitExecutor, logger *zap.Logger, observer execshell.CommandEventObserver) (gitrepo.GitExecutor, error) {
	if existing != nil {
		return existing, nil
	}
	return ResolveShellExecutor(logger, observer)
}

// ResolveRepositoryManager returns the provided repository manager or constructs one from the executor.
func ResolveRepositoryManager(existing *gitrepo.RepositoryManager, executor gitrepo.GitExecutor) (*gitrepo.RepositoryManager, error) {
	if existing != nil {
		return existing, nil
	}
	return gitrepo.NewRepositoryManager(executor)
}

// ResolveInventory returns the provided inventory or constructs a filesystem-backed default.
func ResolveInventory(existing *charms.Inventory, logger *zap.Logger) *charms.Inventory {
	if existing != nil {
		return existing
	}
	return charms.NewInventory(logger)
}
