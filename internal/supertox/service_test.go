package supertox_test

import (
	"context"
	"os"
	"path/filepath"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/charms"
	"github.com/canonical/charm-analysis/internal/execshell"
	"github.com/canonical/charm-analysis/internal/supertox"
)

type recordedToxRun struct {
	arguments        []string
	workingDirectory string
}

type stubToxExecutor struct {
	mutex           stdsync.Mutex
	runs            []recordedToxRun
	exitCodes       map[string]int
	executionErrs   map[string]error
	operationDelay  time.Duration
	inFlightCount   atomic.Int64
	maximumInFlight atomic.Int64
}

func (executor *stubToxExecutor) ExecuteTox(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.trackInFlight()
	defer executor.inFlightCount.Add(-1)

	executor.mutex.Lock()
	executor.runs = append(executor.runs, recordedToxRun{
		arguments:        details.Arguments,
		workingDirectory: details.WorkingDirectory,
	})
	executor.mutex.Unlock()

	command := execshell.ShellCommand{Name: execshell.CommandTox, Details: details}
	projectName := filepath.Base(details.WorkingDirectory)
	if executionError, found := executor.executionErrs[projectName]; found {
		return execshell.ExecutionResult{}, execshell.CommandExecutionError{Command: command, Cause: executionError}
	}
	if exitCode, found := executor.exitCodes[projectName]; found && exitCode != 0 {
		result := execshell.ExecutionResult{StandardOutput: "tox output", StandardError: "tox errors", ExitCode: exitCode}
		return result, execshell.CommandFailedError{Command: command, Result: result}
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *stubToxExecutor) trackInFlight() {
	currentInFlight := executor.inFlightCount.Add(1)
	for {
		observedMaximum := executor.maximumInFlight.Load()
		if currentInFlight <= observedMaximum {
			break
		}
		if executor.maximumInFlight.CompareAndSwap(observedMaximum, currentInFlight) {
			break
		}
	}
	if executor.operationDelay > 0 {
		time.Sleep(executor.operationDelay)
	}
}

func (executor *stubToxExecutor) recordedProjects() []string {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()

	var projectNames []string
	for _, run := range executor.runs {
		projectNames = append(projectNames, filepath.Base(run.workingDirectory))
	}
	return projectNames
}

func writeCacheFixture(testInstance *testing.T) string {
	cacheRoot := testInstance.TempDir()

	for _, projectName := range []string{"grafana-k8s-operator", "kafka-k8s-operator", "traefik-k8s-operator"} {
		projectPath := filepath.Join(cacheRoot, projectName)
		require.NoError(testInstance, os.MkdirAll(projectPath, 0o755))
		require.NoError(testInstance, os.WriteFile(filepath.Join(projectPath, "tox.ini"), []byte("[tox]\n"), 0o644))
	}

	legacyPath := filepath.Join(cacheRoot, "legacy-operator")
	require.NoError(testInstance, os.MkdirAll(filepath.Join(legacyPath, "hooks"), 0o755))

	noToxPath := filepath.Join(cacheRoot, "docs-only-operator")
	require.NoError(testInstance, os.MkdirAll(noToxPath, 0o755))

	return cacheRoot
}

func newBatchService(testInstance *testing.T, executor supertox.ToxExecutor) *supertox.Service {
	service, constructionError := supertox.NewService(supertox.Dependencies{
		Logger:    zap.NewNop(),
		Executor:  executor,
		Inventory: charms.NewInventory(zap.NewNop()),
	})
	require.NoError(testInstance, constructionError)
	return service
}

func TestNewServiceValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		dependencies  supertox.Dependencies
		expectedError error
	}{
		{
			name:          "missing_executor",
			dependencies:  supertox.Dependencies{Inventory: charms.NewInventory(nil)},
			expectedError: supertox.ErrToxExecutorNotConfigured,
		},
		{
			name:          "missing_inventory",
			dependencies:  supertox.Dependencies{Executor: &stubToxExecutor{}},
			expectedError: supertox.ErrInventoryNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			service, constructionError := supertox.NewService(testCase.dependencies)
			require.ErrorIs(testInstance, constructionError, testCase.expectedError)
			require.Nil(testInstance, service)
		})
	}
}

func TestRunRequiresCacheRoot(testInstance *testing.T) {
	service := newBatchService(testInstance, &stubToxExecutor{})
	outcomes, runError := service.Run(context.Background(), supertox.Options{})
	require.ErrorIs(testInstance, runError, supertox.ErrCacheRootRequired)
	require.Nil(testInstance, outcomes)
}

func TestRunExecutesEligibleProjects(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:      cacheRoot,
		ToxEnvironment: "unit",
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 3)
	for _, outcome := range outcomes {
		require.Equal(testInstance, supertox.StateSucceeded, outcome.State)
	}

	require.ElementsMatch(
		testInstance,
		[]string{"grafana-k8s-operator", "kafka-k8s-operator", "traefik-k8s-operator"},
		executor.recordedProjects(),
	)
	for _, run := range executor.runs {
		require.Equal(testInstance, []string{"-e", "unit"}, run.arguments)
	}
}

func TestRunReportsExclusionsWithoutStartingSubprocesses(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	exclusions := supertox.NewExclusionList(map[string][]string{
		"expensive": {"kafka-k8s-operator"},
	})

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:  cacheRoot,
		Exclusions: exclusions,
	})
	require.NoError(testInstance, runError)
	require.NotContains(testInstance, executor.recordedProjects(), "kafka-k8s-operator")

	var skippedOutcome *supertox.Outcome
	for outcomeIndex, outcome := range outcomes {
		if outcome.State == supertox.StateSkipped {
			skippedOutcome = &outcomes[outcomeIndex]
		}
	}
	require.NotNil(testInstance, skippedOutcome)
	require.Equal(testInstance, "kafka-k8s-operator", skippedOutcome.ProjectName)
	require.Equal(testInstance, "expensive", skippedOutcome.SkipCategory)
}

func TestRunFiltersByRepositoryPattern(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:         cacheRoot,
		RepositoryPattern: "GRAFANA",
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 1)
	require.Equal(testInstance, "grafana-k8s-operator", outcomes[0].ProjectName)
}

func TestRunRejectsInvalidRepositoryPattern(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	service := newBatchService(testInstance, &stubToxExecutor{})

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:         cacheRoot,
		RepositoryPattern: "[invalid",
	})
	require.Error(testInstance, runError)
	require.Nil(testInstance, outcomes)
}

func TestRunRecordsFailuresWithoutStoppingSiblings(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{
		exitCodes:     map[string]int{"kafka-k8s-operator": 1},
		executionErrs: map[string]error{"traefik-k8s-operator": os.ErrNotExist},
	}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{CacheRoot: cacheRoot})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 3)

	outcomesByName := map[string]supertox.Outcome{}
	for _, outcome := range outcomes {
		outcomesByName[outcome.ProjectName] = outcome
	}

	require.Equal(testInstance, supertox.StateSucceeded, outcomesByName["grafana-k8s-operator"].State)

	failedOutcome := outcomesByName["kafka-k8s-operator"]
	require.Equal(testInstance, supertox.StateFailed, failedOutcome.State)
	require.Equal(testInstance, 1, failedOutcome.ExitCode)
	require.Equal(testInstance, "tox output", failedOutcome.StandardOutput)
	require.Equal(testInstance, "tox errors", failedOutcome.StandardError)

	erroredOutcome := outcomesByName["traefik-k8s-operator"]
	require.Equal(testInstance, supertox.StateErrored, erroredOutcome.State)
	require.ErrorIs(testInstance, erroredOutcome.Failure, os.ErrNotExist)

	require.Equal(testInstance, 2, supertox.CountFailures(outcomes))
}

func TestRunHonorsWorkerLimit(testInstance *testing.T) {
	cacheRoot := testInstance.TempDir()
	for projectIndex := 0; projectIndex < 8; projectIndex++ {
		projectPath := filepath.Join(cacheRoot, "charm-operator-"+string(rune('a'+projectIndex)))
		require.NoError(testInstance, os.MkdirAll(projectPath, 0o755))
		require.NoError(testInstance, os.WriteFile(filepath.Join(projectPath, "tox.ini"), []byte("[tox]\n"), 0o644))
	}

	executor := &stubToxExecutor{operationDelay: 10 * time.Millisecond}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:   cacheRoot,
		WorkerCount: 2,
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 8)
	require.Len(testInstance, executor.recordedProjects(), 8)
	require.LessOrEqual(testInstance, executor.maximumInFlight.Load(), int64(2))
}

func TestRunSamplesEligibleProjects(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:  cacheRoot,
		SampleSize: 2,
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 2)
	require.Len(testInstance, executor.recordedProjects(), 2)

	seenProjects := map[string]bool{}
	for _, outcome := range outcomes {
		require.False(testInstance, seenProjects[outcome.ProjectName])
		seenProjects[outcome.ProjectName] = true
	}
}

func TestRunRemovesToxEnvironmentsWhenFresh(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	staleToxPath := filepath.Join(cacheRoot, "grafana-k8s-operator", ".tox", "unit")
	require.NoError(testInstance, os.MkdirAll(staleToxPath, 0o755))

	service := newBatchService(testInstance, &stubToxExecutor{})
	_, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:         cacheRoot,
		FreshEnvironments: true,
	})
	require.NoError(testInstance, runError)
	require.NoDirExists(testInstance, filepath.Join(cacheRoot, "grafana-k8s-operator", ".tox"))
}

func TestRunAppliesAndRestoresDependencyOverride(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	requirementsPath := filepath.Join(cacheRoot, "grafana-k8s-operator", "requirements.txt")
	require.NoError(testInstance, os.WriteFile(requirementsPath, []byte("ops>=2.0\n"), 0o644))

	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:         cacheRoot,
		RepositoryPattern: "grafana",
		Override: supertox.OverrideSource{
			DependencyName: "ops",
			Location:       "https://github.com/canonical/operator",
		},
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 1)
	require.Equal(testInstance, supertox.StateSucceeded, outcomes[0].State)

	restoredRequirements, readError := os.ReadFile(requirementsPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "ops>=2.0\n", string(restoredRequirements))
}

func TestRunMarksUnpatchableProjectsErrored(testInstance *testing.T) {
	cacheRoot := writeCacheFixture(testInstance)
	executor := &stubToxExecutor{}
	service := newBatchService(testInstance, executor)

	outcomes, runError := service.Run(context.Background(), supertox.Options{
		CacheRoot:         cacheRoot,
		RepositoryPattern: "kafka",
		Override: supertox.OverrideSource{
			DependencyName: "ops",
			Location:       "https://github.com/canonical/operator",
		},
	})
	require.NoError(testInstance, runError)
	require.Len(testInstance, outcomes, 1)
	require.Equal(testInstance, supertox.StateErrored, outcomes[0].State)

	var preparationFailure supertox.PreparationError
	require.ErrorAs(testInstance, outcomes[0].Failure, &preparationFailure)
	require.Empty(testInstance, executor.recordedProjects())
}
