package gitrepo

import (
	"context"
	"errors"

	"github.com/canonical/charm-analysis/internal/execshell"
)

const (
	gitExecutorMissingMessageConstant           = "repository manager requires a git executor"
	gitCloneSubcommandConstant                  = "clone"
	gitCloneDepthFlagConstant                   = "--depth=1"
	gitCloneShallowSubmodulesFlagConstant       = "--shallow-submodules"
	gitCloneSingleBranchFlagConstant            = "--single-branch"
	gitCloneNoTagsFlagConstant                  = "--no-tags"
	gitQuietFlagConstant                        = "--quiet"
	gitCloneBranchFlagConstant                  = "--branch"
	gitPullSubcommandConstant                   = "pull"
	gitCleanSubcommandConstant                  = "clean"
	gitCleanForceFlagConstant                   = "-fdx"
	gitCleanDryRunFlagConstant                  = "-fdxn"
	gitTerminalPromptEnvironmentNameConstant    = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentDisableConstant = "0"
)

// ErrGitExecutorNotConfigured indicates the manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// GitExecutor exposes the subset of shell execution required by the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// CloneOptions describes a shallow single-branch clone request.
type CloneOptions struct {
	RemoteLocation   string
	DestinationPath  string
	BranchName       string
	WorkingDirectory string
}

// RepositoryManager drives repository-level git operations through a GitExecutor.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager from the provided executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// CloneShallow fetches only the tip of a single branch into the destination path.
func (manager *RepositoryManager) CloneShallow(executionContext context.Context, options CloneOptions) error {
	cloneArguments := []string{
		gitCloneSubcommandConstant,
		gitCloneDepthFlagConstant,
		gitCloneShallowSubmodulesFlagConstant,
		gitCloneSingleBranchFlagConstant,
		gitCloneNoTagsFlagConstant,
		gitQuietFlagConstant,
	}
	if len(options.BranchName) > 0 {
		cloneArguments = append(cloneArguments, gitCloneBranchFlagConstant, options.BranchName)
	}
	cloneArguments = append(cloneArguments, options.RemoteLocation, options.DestinationPath)

	return manager.executeGit(executionContext, execshell.CommandDetails{
		Arguments:        cloneArguments,
		WorkingDirectory: options.WorkingDirectory,
	})
}

// Pull brings an existing clone up to date with its upstream branch.
func (manager *RepositoryManager) Pull(executionContext context.Context, repositoryPath string) error {
	return manager.executeGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPullSubcommandConstant, gitQuietFlagConstant},
		WorkingDirectory: repositoryPath,
	})
}

// CleanUntracked removes untracked and ignored files, returning git's listing of affected paths.
func (manager *RepositoryManager) CleanUntracked(executionContext context.Context, repositoryPath string, dryRun bool) (string, error) {
	cleanFlag := gitCleanForceFlagConstant
	if dryRun {
		cleanFlag = gitCleanDryRunFlagConstant
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, withoutTerminalPrompts(execshell.CommandDetails{
		Arguments:        []string{gitCleanSubcommandConstant, cleanFlag},
		WorkingDirectory: repositoryPath,
	}))
	if executionError != nil {
		return "", executionError
	}
	return executionResult.StandardOutput, nil
}

func (manager *RepositoryManager) executeGit(executionContext context.Context, details execshell.CommandDetails) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, withoutTerminalPrompts(details))
	return executionError
}

func withoutTerminalPrompts(details execshell.CommandDetails) execshell.CommandDetails {
	if details.EnvironmentVariables == nil {
		details.EnvironmentVariables = map[string]string{}
	}
	details.EnvironmentVariables[gitTerminalPromptEnvironmentNameConstant] = gitTerminalPromptEnvironmentDisableConstant
	return details
}
