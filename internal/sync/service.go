package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/charm-analysis/internal/gitrepo"
	"github.com/canonical/charm-analysis/internal/roster"
)

const (
	repositoryManagerMissingMessageConstant = "sync service requires a repository manager"
	cacheRootRequiredMessageConstant        = "cache root must be provided"
	cacheRootCreateErrorTemplateConstant    = "unable to create cache root %s: %w"
	cacheDirectoryPermissionsConstant       = 0o755
	cloningLogMessageConstant               = "cloning repository"
	pullingLogMessageConstant               = "pulling repository"
	operationFailedLogMessageConstant       = "repository sync failed"
	logFieldCharmConstant                   = "charm"
	logFieldRemoteConstant                  = "remote"
	logFieldDirectoryConstant               = "directory"
)

// ErrRepositoryManagerNotConfigured indicates the service was built without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrCacheRootRequired indicates the cache root option was empty.
var ErrCacheRootRequired = errors.New(cacheRootRequiredMessageConstant)

// Action identifies which git operation a sync task performed.
type Action string

// Actions a sync task can take for one repository.
const (
	ActionCloned Action = "cloned"
	ActionPulled Action = "pulled"
)

// Outcome records the result of syncing a single repository.
type Outcome struct {
	CharmName      string
	RemoteLocation string
	DirectoryName  string
	Action         Action
	Failure        error
}

// RepositoryManager exposes the git operations the sync service needs.
type RepositoryManager interface {
	CloneShallow(executionContext context.Context, options gitrepo.CloneOptions) error
	Pull(executionContext context.Context, repositoryPath string) error
}

// Dependencies enumerates external collaborators required by the sync service.
type Dependencies struct {
	Logger  *zap.Logger
	Manager RepositoryManager
}

// Options configures one sync run.
type Options struct {
	CacheRoot   string
	References  []roster.Reference
	WorkerCount int
}

// Service clones or pulls every referenced repository with bounded concurrency.
type Service struct {
	logger  *zap.Logger
	manager RepositoryManager
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Manager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, manager: dependencies.Manager}, nil
}

// Sync brings the cache up to date with the referenced repositories.
//
// Exactly one clone or pull is issued per reference. Operations run
// concurrently up to the worker limit; a failing operation is recorded in its
// outcome and does not stop sibling operations. Outcomes are returned in
// reference order regardless of completion order.
func (service *Service) Sync(executionContext context.Context, options Options) ([]Outcome, error) {
	if len(options.CacheRoot) == 0 {
		return nil, ErrCacheRootRequired
	}
	if createError := os.MkdirAll(options.CacheRoot, cacheDirectoryPermissionsConstant); createError != nil {
		return nil, fmt.Errorf(cacheRootCreateErrorTemplateConstant, options.CacheRoot, createError)
	}

	workerCount := options.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(options.References))

	var taskGroup errgroup.Group
	taskGroup.SetLimit(workerCount)
	for referenceIndex, reference := range options.References {
		referenceIndex, reference := referenceIndex, reference
		taskGroup.Go(func() error {
			outcomes[referenceIndex] = service.syncRepository(executionContext, options.CacheRoot, reference)
			return nil
		})
	}

	// Tasks record failures in their outcome instead of returning errors, so
	// waiting never fails and no sibling is ever canceled.
	_ = taskGroup.Wait()

	return outcomes, nil
}

func (service *Service) syncRepository(executionContext context.Context, cacheRoot string, reference roster.Reference) Outcome {
	directoryName := gitrepo.LocalDirectoryName(reference.RemoteLocation, reference.BranchName)
	destinationPath := filepath.Join(cacheRoot, directoryName)
	outcome := Outcome{
		CharmName:      reference.CharmName,
		RemoteLocation: reference.RemoteLocation,
		DirectoryName:  directoryName,
	}

	if _, statError := os.Stat(destinationPath); statError == nil {
		outcome.Action = ActionPulled
		service.logger.Info(
			pullingLogMessageConstant,
			zap.String(logFieldCharmConstant, reference.CharmName),
			zap.String(logFieldDirectoryConstant, destinationPath),
		)
		if pullError := service.manager.Pull(executionContext, destinationPath); pullError != nil {
			outcome.Failure = pullError
			service.logFailure(reference, pullError)
		}
		return outcome
	}

	rewrittenRemote := gitrepo.RewriteToSSH(reference.RemoteLocation)
	outcome.Action = ActionCloned
	service.logger.Info(
		cloningLogMessageConstant,
		zap.String(logFieldCharmConstant, reference.CharmName),
		zap.String(logFieldRemoteConstant, rewrittenRemote),
		zap.String(logFieldDirectoryConstant, destinationPath),
	)
	if cloneError := service.manager.CloneShallow(executionContext, gitrepo.CloneOptions{
		RemoteLocation:  rewrittenRemote,
		DestinationPath: destinationPath,
		BranchName:      reference.BranchName,
	}); cloneError != nil {
		outcome.Failure = cloneError
		service.logFailure(reference, cloneError)
	}
	return outcome
}

func (service *Service) logFailure(reference roster.Reference, failure error) {
	service.logger.Error(
		operationFailedLogMessageConstant,
		zap.String(logFieldCharmConstant, reference.CharmName),
		zap.String(logFieldRemoteConstant, reference.RemoteLocation),
		zap.Error(failure),
	)
}
