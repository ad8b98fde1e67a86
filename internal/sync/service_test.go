package sync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/gitrepo"
	"github.com/canonical/charm-analysis/internal/roster"
	syncpkg "github.com/canonical/charm-analysis/internal/sync"
)

const (
	serviceConstructionMissingManagerCaseNameConstant = "missing_manager"
	syncMissingCacheRootCaseNameConstant              = "missing_cache_root"
	syncClonesAbsentRepositoriesCaseNameConstant      = "clones_absent_repositories"
	syncPullsPresentRepositoriesCaseNameConstant      = "pulls_present_repositories"
	syncRecordsFailuresCaseNameConstant               = "records_failures_without_stopping"
	syncRewritesRemoteCaseNameConstant                = "rewrites_https_remote_to_ssh"
	syncHonorsWorkerLimitCaseNameConstant             = "honors_worker_limit"
)

type recordedCloneCall struct {
	options gitrepo.CloneOptions
}

type recordedPullCall struct {
	repositoryPath string
}

type stubRepositoryManager struct {
	mutex           stdsync.Mutex
	cloneCalls      []recordedCloneCall
	pullCalls       []recordedPullCall
	failingRemotes  map[string]error
	operationDelay  time.Duration
	inFlightCount   atomic.Int64
	maximumInFlight atomic.Int64
}

func (manager *stubRepositoryManager) CloneShallow(_ context.Context, options gitrepo.CloneOptions) error {
	manager.trackInFlight()
	defer manager.inFlightCount.Add(-1)

	manager.mutex.Lock()
	manager.cloneCalls = append(manager.cloneCalls, recordedCloneCall{options: options})
	manager.mutex.Unlock()

	if failure, found := manager.failingRemotes[options.RemoteLocation]; found {
		return failure
	}
	return nil
}

func (manager *stubRepositoryManager) Pull(_ context.Context, repositoryPath string) error {
	manager.trackInFlight()
	defer manager.inFlightCount.Add(-1)

	manager.mutex.Lock()
	manager.pullCalls = append(manager.pullCalls, recordedPullCall{repositoryPath: repositoryPath})
	manager.mutex.Unlock()

	return nil
}

func (manager *stubRepositoryManager) trackInFlight() {
	currentInFlight := manager.inFlightCount.Add(1)
	for {
		observedMaximum := manager.maximumInFlight.Load()
		if currentInFlight <= observedMaximum {
			break
		}
		if manager.maximumInFlight.CompareAndSwap(observedMaximum, currentInFlight) {
			break
		}
	}
	if manager.operationDelay > 0 {
		time.Sleep(manager.operationDelay)
	}
}

func TestNewService(testInstance *testing.T) {
	testCases := []struct {
		name          string
		dependencies  syncpkg.Dependencies
		expectedError error
	}{
		{
			name:          serviceConstructionMissingManagerCaseNameConstant,
			dependencies:  syncpkg.Dependencies{Logger: zap.NewNop()},
			expectedError: syncpkg.ErrRepositoryManagerNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			service, constructionError := syncpkg.NewService(testCase.dependencies)
			require.ErrorIs(testInstance, constructionError, testCase.expectedError)
			require.Nil(testInstance, service)
		})
	}
}

func TestSyncRequiresCacheRoot(testInstance *testing.T) {
	service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: &stubRepositoryManager{}})
	require.NoError(testInstance, constructionError)

	outcomes, syncError := service.Sync(context.Background(), syncpkg.Options{})
	require.ErrorIs(testInstance, syncError, syncpkg.ErrCacheRootRequired)
	require.Nil(testInstance, outcomes)
}

func TestSyncClonesAbsentRepositories(testInstance *testing.T) {
	testInstance.Run(syncClonesAbsentRepositoriesCaseNameConstant, func(testInstance *testing.T) {
		cacheRoot := testInstance.TempDir()
		manager := &stubRepositoryManager{}
		service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: manager})
		require.NoError(testInstance, constructionError)

		references := []roster.Reference{
			{CharmName: "postgresql-k8s", RemoteLocation: "git@github.com:canonical/postgresql-k8s-operator.git"},
			{CharmName: "mysql-k8s", RemoteLocation: "git@github.com:canonical/mysql-k8s-operator.git", BranchName: "8.0"},
		}

		outcomes, syncError := service.Sync(context.Background(), syncpkg.Options{
			CacheRoot:  cacheRoot,
			References: references,
		})
		require.NoError(testInstance, syncError)
		require.Len(testInstance, outcomes, len(references))
		require.Len(testInstance, manager.cloneCalls, len(references))
		require.Empty(testInstance, manager.pullCalls)

		require.Equal(testInstance, "postgresql-k8s", outcomes[0].CharmName)
		require.Equal(testInstance, syncpkg.ActionCloned, outcomes[0].Action)
		require.Equal(testInstance, "postgresql-k8s-operator", outcomes[0].DirectoryName)
		require.NoError(testInstance, outcomes[0].Failure)

		require.Equal(testInstance, "mysql-k8s-operator-8.0", outcomes[1].DirectoryName)
	})
}

func TestSyncPullsPresentRepositories(testInstance *testing.T) {
	testInstance.Run(syncPullsPresentRepositoriesCaseNameConstant, func(testInstance *testing.T) {
		cacheRoot := testInstance.TempDir()
		existingPath := filepath.Join(cacheRoot, "postgresql-k8s-operator")
		require.NoError(testInstance, os.MkdirAll(existingPath, 0o755))

		manager := &stubRepositoryManager{}
		service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: manager})
		require.NoError(testInstance, constructionError)

		outcomes, syncError := service.Sync(context.Background(), syncpkg.Options{
			CacheRoot: cacheRoot,
			References: []roster.Reference{
				{CharmName: "postgresql-k8s", RemoteLocation: "https://github.com/canonical/postgresql-k8s-operator"},
			},
		})
		require.NoError(testInstance, syncError)
		require.Empty(testInstance, manager.cloneCalls)
		require.Len(testInstance, manager.pullCalls, 1)
		require.Equal(testInstance, existingPath, manager.pullCalls[0].repositoryPath)
		require.Equal(testInstance, syncpkg.ActionPulled, outcomes[0].Action)
	})
}

func TestSyncRecordsFailuresWithoutStopping(testInstance *testing.T) {
	testInstance.Run(syncRecordsFailuresCaseNameConstant, func(testInstance *testing.T) {
		cacheRoot := testInstance.TempDir()
		cloneFailure := errors.New("remote unreachable")
		manager := &stubRepositoryManager{
			failingRemotes: map[string]error{
				"git@github.com:canonical/broken-operator.git": cloneFailure,
			},
		}
		service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: manager})
		require.NoError(testInstance, constructionError)

		outcomes, syncError := service.Sync(context.Background(), syncpkg.Options{
			CacheRoot: cacheRoot,
			References: []roster.Reference{
				{CharmName: "broken", RemoteLocation: "https://github.com/canonical/broken-operator"},
				{CharmName: "healthy", RemoteLocation: "https://github.com/canonical/healthy-operator"},
			},
		})
		require.NoError(testInstance, syncError)
		require.Len(testInstance, manager.cloneCalls, 2)
		require.ErrorIs(testInstance, outcomes[0].Failure, cloneFailure)
		require.NoError(testInstance, outcomes[1].Failure)
		require.Equal(testInstance, 1, syncpkg.CountFailures(outcomes))
	})
}

func TestSyncRewritesHTTPSRemoteToSSH(testInstance *testing.T) {
	testInstance.Run(syncRewritesRemoteCaseNameConstant, func(testInstance *testing.T) {
		cacheRoot := testInstance.TempDir()
		manager := &stubRepositoryManager{}
		service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: manager})
		require.NoError(testInstance, constructionError)

		_, syncError := service.Sync(context.Background(), syncpkg.Options{
			CacheRoot: cacheRoot,
			References: []roster.Reference{
				{CharmName: "traefik-k8s", RemoteLocation: "https://github.com/canonical/traefik-k8s-operator"},
			},
		})
		require.NoError(testInstance, syncError)
		require.Len(testInstance, manager.cloneCalls, 1)
		require.Equal(testInstance, "git@github.com:canonical/traefik-k8s-operator", manager.cloneCalls[0].options.RemoteLocation)
	})
}

func TestSyncHonorsWorkerLimit(testInstance *testing.T) {
	testInstance.Run(syncHonorsWorkerLimitCaseNameConstant, func(testInstance *testing.T) {
		cacheRoot := testInstance.TempDir()
		manager := &stubRepositoryManager{operationDelay: 10 * time.Millisecond}
		service, constructionError := syncpkg.NewService(syncpkg.Dependencies{Manager: manager})
		require.NoError(testInstance, constructionError)

		references := make([]roster.Reference, 8)
		for referenceIndex := range references {
			references[referenceIndex] = roster.Reference{
				CharmName:      "charm",
				RemoteLocation: "https://github.com/canonical/charm-operator-" + string(rune('a'+referenceIndex)),
			}
		}

		_, syncError := service.Sync(context.Background(), syncpkg.Options{
			CacheRoot:   cacheRoot,
			References:  references,
			WorkerCount: 2,
		})
		require.NoError(testInstance, syncError)
		require.LessOrEqual(testInstance, manager.maximumInFlight.Load(), int64(2))
		require.Len(testInstance, manager.cloneCalls, len(references))
	})
}
