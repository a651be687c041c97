package devsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
)

// Errors returned by BuildController. Remote causes stay in the chain, so
// errors.Is(err, cmsapi.ErrProjectLocked) and friends keep working.
var (
	ErrProvisionFailed = errors.New("devsync: provisioning staged build failed")
	ErrQueueFailed     = errors.New("devsync: queueing build failed")
)

// BuildState is the lifecycle state of the project's remote build.
type BuildState int

const (
	BuildIdle BuildState = iota
	BuildStaged
	BuildQueued
	BuildDeployed
	BuildCancelling
)

func (s BuildState) String() string {
	switch s {
	case BuildIdle:
		return "idle"
	case BuildStaged:
		return "staged"
	case BuildQueued:
		return "queued"
	case BuildDeployed:
		return "deployed"
	case BuildCancelling:
		return "cancelling"
	default:
		return fmt.Sprintf("BuildState(%d)", int(s))
	}
}

// Pauser is the upload queue control the controller needs to drain uploads
// before queueing a build.
type Pauser interface {
	// Pause returns once every task submitted before it has finished.
	Pause(ctx context.Context) error
	Resume()
	IsPaused() bool
}

// BuildOutcome describes one completed QueueAndDeploy cycle.
type BuildOutcome struct {
	BuildID int64
	Result  cmsapi.DeployResult
	// DeployErr is set when the build or deploy did not succeed. It does
	// not end the session.
	DeployErr     error
	Reprovisioned bool
}

// BuildController owns the staged build for one project. It is the only
// writer of the build ID; the shutdown path reads it through BuildID.
type BuildController struct {
	api             BuildAPI
	queue           Pauser
	accountID       int64
	project         string
	platformVersion string
	permission      UploadPermission
	logger          *slog.Logger

	mu      sync.Mutex
	buildID int64 // 0: nothing staged
	state   BuildState
}

// NewBuildController creates a controller in the idle state.
func NewBuildController(
	api BuildAPI, queue Pauser, accountID int64, project, platformVersion string,
	permission UploadPermission, logger *slog.Logger,
) *BuildController {
	if logger == nil {
		logger = slog.Default()
	}

	return &BuildController{
		api:             api,
		queue:           queue,
		accountID:       accountID,
		project:         project,
		platformVersion: platformVersion,
		permission:      permission,
		logger:          logger,
	}
}

// BuildID returns the open staged build, or 0.
func (c *BuildController) BuildID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buildID
}

// State returns the current lifecycle state.
func (c *BuildController) State() BuildState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *BuildController) set(state BuildState, buildID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.buildID = buildID
}

// Provision opens a new staged build. When the project is locked by another
// staged build, that build is cancelled and the error is still returned:
// the session does not retry and the next run provisions afresh.
func (c *BuildController) Provision(ctx context.Context) error {
	b, err := c.api.ProvisionBuild(ctx, c.accountID, c.project, c.platformVersion)
	if err != nil {
		if errors.Is(err, cmsapi.ErrProjectLocked) {
			c.logger.Warn("project is locked by another staged build, cancelling it",
				slog.String("project", c.project),
			)

			if cancelErr := c.api.CancelStagedBuild(ctx, c.accountID, c.project); cancelErr != nil &&
				!errors.Is(cancelErr, cmsapi.ErrBuildNotInProgress) {
				c.logger.Error("failed to cancel locking build",
					slog.String("project", c.project),
					slog.String("error", cancelErr.Error()),
				)
			}
		}

		return fmt.Errorf("%w: %w", ErrProvisionFailed, err)
	}

	c.set(BuildStaged, b.BuildID)

	c.logger.Info("staged build ready",
		slog.String("project", c.project),
		slog.Int64("build_id", b.BuildID),
	)

	return nil
}

// QueueAndDeploy drains the upload queue, queues the staged build, and polls
// it until deployed. With permission always, a new staged build is then
// provisioned and the queue resumed.
//
// A missing-provision error means the build was cancelled elsewhere; it is
// returned wrapped in ErrQueueFailed and the caller should end the session.
// Any other queue failure leaves the build staged and the queue paused.
func (c *BuildController) QueueAndDeploy(ctx context.Context) (BuildOutcome, error) {
	if err := c.queue.Pause(ctx); err != nil {
		return BuildOutcome{}, fmt.Errorf("%w: %w", ErrQueueFailed, err)
	}

	staged := c.BuildID()

	queued, err := c.api.QueueBuild(ctx, c.accountID, c.project, c.platformVersion)
	if err != nil {
		if errors.Is(err, cmsapi.ErrMissingProjectProvision) {
			c.logger.Info("staged build no longer exists, it was cancelled elsewhere",
				slog.String("project", c.project),
			)
			c.set(BuildIdle, 0)
		} else {
			c.logger.Error("failed to queue build",
				slog.String("project", c.project),
				slog.Int64("build_id", staged),
				slog.String("error", err.Error()),
			)
		}

		return BuildOutcome{BuildID: staged}, fmt.Errorf("%w: %w", ErrQueueFailed, err)
	}

	buildID := queued.BuildID
	if buildID == 0 {
		buildID = staged
	}

	c.set(BuildQueued, 0)

	out := BuildOutcome{BuildID: buildID}

	res, err := c.api.PollDeployStatus(ctx, c.accountID, c.project, buildID)
	out.Result = res

	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("devsync: polling build %d: %w", buildID, ctx.Err())
		}

		c.logger.Warn("build did not deploy",
			slog.Int64("build_id", buildID),
			slog.String("status", res.Status),
			slog.String("error", err.Error()),
		)

		out.DeployErr = err
	}

	c.set(BuildDeployed, 0)

	if c.permission != PermissionAlways {
		c.set(BuildIdle, 0)

		return out, nil
	}

	if err := c.Provision(ctx); err != nil {
		c.set(BuildIdle, 0)

		return out, err
	}

	out.Reprovisioned = true
	c.queue.Resume()

	return out, nil
}

// Cancel discards the open staged build, if any. A build the server already
// considers finished counts as cancelled.
func (c *BuildController) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.buildID == 0 {
		c.mu.Unlock()

		return nil
	}

	id := c.buildID
	c.state = BuildCancelling
	c.mu.Unlock()

	c.logger.Info("cancelling staged build", slog.Int64("build_id", id))

	err := c.api.CancelStagedBuild(ctx, c.accountID, c.project)
	if err != nil && !errors.Is(err, cmsapi.ErrBuildNotInProgress) {
		c.set(BuildStaged, id)

		return fmt.Errorf("devsync: cancelling build %d: %w", id, err)
	}

	c.set(BuildIdle, 0)

	return nil
}
