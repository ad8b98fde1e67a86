package gitrepo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/charm-analysis/internal/execshell"
	"github.com/canonical/charm-analysis/internal/gitrepo"
)

type recordingGitExecutor struct {
	recordedCommands []execshell.CommandDetails
	executionResult  execshell.ExecutionResult
	executionError   error
}

func (executor *recordingGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedCommands = append(executor.recordedCommands, details)
	return executor.executionResult, executor.executionError
}

func TestNewRepositoryManagerValidatesExecutor(testInstance *testing.T) {
	manager, creationError := gitrepo.NewRepositoryManager(nil)
	require.ErrorIs(testInstance, creationError, gitrepo.ErrGitExecutorNotConfigured)
	require.Nil(testInstance, manager)
}

func TestCloneShallowBuildsExpectedArguments(testInstance *testing.T) {
	executor := &recordingGitExecutor{}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	cloneError := manager.CloneShallow(context.Background(), gitrepo.CloneOptions{
		RemoteLocation:  "git@github.com:canonical/operator",
		DestinationPath: "/cache/operator",
		BranchName:      "track-2.x",
	})
	require.NoError(testInstance, cloneError)
	require.Len(testInstance, executor.recordedCommands, 1)

	recordedCommand := executor.recordedCommands[0]
	require.Equal(testInstance, []string{
		"clone",
		"--depth=1",
		"--shallow-submodules",
		"--single-branch",
		"--no-tags",
		"--quiet",
		"--branch",
		"track-2.x",
		"git@github.com:canonical/operator",
		"/cache/operator",
	}, recordedCommand.Arguments)
	require.Equal(testInstance, "0", recordedCommand.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
}

func TestCloneShallowOmitsBranchFlagWhenUnpinned(testInstance *testing.T) {
	executor := &recordingGitExecutor{}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	cloneError := manager.CloneShallow(context.Background(), gitrepo.CloneOptions{
		RemoteLocation:  "git@github.com:canonical/operator",
		DestinationPath: "/cache/operator",
	})
	require.NoError(testInstance, cloneError)
	require.NotContains(testInstance, executor.recordedCommands[0].Arguments, "--branch")
}

func TestPullRunsQuietlyInRepository(testInstance *testing.T) {
	executor := &recordingGitExecutor{}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	pullError := manager.Pull(context.Background(), "/cache/operator")
	require.NoError(testInstance, pullError)
	require.Len(testInstance, executor.recordedCommands, 1)
	require.Equal(testInstance, []string{"pull", "--quiet"}, executor.recordedCommands[0].Arguments)
	require.Equal(testInstance, "/cache/operator", executor.recordedCommands[0].WorkingDirectory)
}

func TestCleanUntrackedSelectsDryRunFlag(testInstance *testing.T) {
	executor := &recordingGitExecutor{executionResult: execshell.ExecutionResult{StandardOutput: "Would remove .tox/\n"}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	cleanOutput, cleanError := manager.CleanUntracked(context.Background(), "/cache/operator", true)
	require.NoError(testInstance, cleanError)
	require.Equal(testInstance, "Would remove .tox/\n", cleanOutput)
	require.Equal(testInstance, []string{"clean", "-fdxn"}, executor.recordedCommands[0].Arguments)

	_, cleanError = manager.CleanUntracked(context.Background(), "/cache/operator", false)
	require.NoError(testInstance, cleanError)
	require.Equal(testInstance, []string{"clean", "-fdx"}, executor.recordedCommands[1].Arguments)
}
