package cmsapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Build and deploy statuses reported by the projects API.
const (
	StatusPending   = "PENDING"
	StatusEnqueued  = "ENQUEUED"
	StatusBuilding  = "BUILDING"
	StatusDeploying = "DEPLOYING"
	StatusSuccess   = "SUCCESS"
	StatusFailure   = "FAILURE"
	StatusCanceled  = "CANCELED"
)

// ErrBuildFailed is returned by PollDeployStatus when the build or deploy
// finishes in a non-success state.
var ErrBuildFailed = errors.New("cmsapi: build did not deploy")

// IsTerminalStatus reports whether a build or deploy status is final.
func IsTerminalStatus(s string) bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCanceled:
		return true
	default:
		return false
	}
}

// Build is a staged build as returned by provisioning.
type Build struct {
	BuildID int64 `json:"buildId"`
}

// BuildStatus is the state of a queued build.
type BuildStatus struct {
	BuildID int64  `json:"buildId"`
	Status  string `json:"status"`
	// DeployID is set once the build spawns a deploy.
	DeployID int64 `json:"deployId,omitempty"`
	// AutoDeploy reports whether a successful build deploys on its own.
	AutoDeploy bool `json:"isAutoDeployEnabled"`
}

// DeployStatus is the state of a deploy spawned by a build.
type DeployStatus struct {
	DeployID int64  `json:"deployId"`
	BuildID  int64  `json:"buildId"`
	Status   string `json:"status"`
}

// DeployResult is the terminal outcome of PollDeployStatus.
type DeployResult struct {
	BuildID     int64
	DeployID    int64
	BuildStatus string
	Status      string
}

type buildRequest struct {
	PlatformVersion string `json:"platformVersion,omitempty"`
}

// projectPath returns the API path prefix for a project.
func projectPath(project string) string {
	return "/dfs/project/v1/projects/" + url.PathEscape(project)
}

// ProvisionBuild opens a staged build for the project.
func (c *Client) ProvisionBuild(ctx context.Context, accountID int64, project, platformVersion string) (Build, error) {
	c.logger.Info("provisioning staged build",
		slog.Int64("account_id", accountID),
		slog.String("project", project),
	)

	var b Build

	err := c.doJSON(ctx, http.MethodPost, projectPath(project)+"/builds/staged/provision",
		portalQuery(accountID), buildRequest{PlatformVersion: platformVersion}, &b)
	if err != nil {
		return Build{}, fmt.Errorf("provisioning build for %s: %w", project, err)
	}

	return b, nil
}

// UploadFile uploads a local file into the staged build at remotePath.
func (c *Client) UploadFile(ctx context.Context, accountID int64, project, localPath, remotePath string) error {
	c.logger.Debug("uploading staged file",
		slog.String("project", project),
		slog.String("remote_path", remotePath),
	)

	body, contentType, err := multipartFile(localPath)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, http.MethodPut,
		projectPath(project)+"/builds/staged/files/"+escapePath(remotePath),
		portalQuery(accountID), contentType, body)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}

	drainClose(resp)

	return nil
}

// DeleteFile removes remotePath from the staged build.
func (c *Client) DeleteFile(ctx context.Context, accountID int64, project, remotePath string) error {
	c.logger.Debug("deleting staged file",
		slog.String("project", project),
		slog.String("remote_path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodDelete,
		projectPath(project)+"/builds/staged/files/"+escapePath(remotePath),
		portalQuery(accountID), "", nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", remotePath, err)
	}

	drainClose(resp)

	return nil
}

// QueueBuild queues the staged build for building and deploying.
func (c *Client) QueueBuild(ctx context.Context, accountID int64, project, platformVersion string) (Build, error) {
	c.logger.Info("queueing staged build",
		slog.Int64("account_id", accountID),
		slog.String("project", project),
	)

	var b Build

	err := c.doJSON(ctx, http.MethodPost, projectPath(project)+"/builds/staged/queue",
		portalQuery(accountID), buildRequest{PlatformVersion: platformVersion}, &b)
	if err != nil {
		return Build{}, fmt.Errorf("queueing build for %s: %w", project, err)
	}

	return b, nil
}

// CancelStagedBuild discards the project's open staged build.
func (c *Client) CancelStagedBuild(ctx context.Context, accountID int64, project string) error {
	c.logger.Info("cancelling staged build",
		slog.Int64("account_id", accountID),
		slog.String("project", project),
	)

	err := c.doJSON(ctx, http.MethodPost, projectPath(project)+"/builds/staged/cancel",
		portalQuery(accountID), struct{}{}, nil)
	if err != nil {
		return fmt.Errorf("cancelling staged build for %s: %w", project, err)
	}

	return nil
}

// GetBuildStatus fetches the current status of a build.
func (c *Client) GetBuildStatus(ctx context.Context, accountID int64, project string, buildID int64) (BuildStatus, error) {
	var s BuildStatus

	err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/builds/%d/status", projectPath(project), buildID),
		portalQuery(accountID), nil, &s)
	if err != nil {
		return BuildStatus{}, fmt.Errorf("getting status of build %d: %w", buildID, err)
	}

	return s, nil
}

// GetDeployStatus fetches the current status of a deploy.
func (c *Client) GetDeployStatus(ctx context.Context, accountID int64, project string, deployID int64) (DeployStatus, error) {
	var s DeployStatus

	err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/deploys/%d/status", projectPath(project), deployID),
		portalQuery(accountID), nil, &s)
	if err != nil {
		return DeployStatus{}, fmt.Errorf("getting status of deploy %d: %w", deployID, err)
	}

	return s, nil
}

// PollDeployStatus waits until the build reaches a terminal state and, if
// it spawned a deploy, until that deploy does too. A build or deploy that
// ends in anything but SUCCESS yields ErrBuildFailed along with the result.
func (c *Client) PollDeployStatus(ctx context.Context, accountID int64, project string, buildID int64) (DeployResult, error) {
	res := DeployResult{BuildID: buildID}

	for {
		bs, err := c.GetBuildStatus(ctx, accountID, project, buildID)
		if err != nil {
			return res, err
		}

		res.BuildStatus = bs.Status
		res.DeployID = bs.DeployID

		if IsTerminalStatus(bs.Status) {
			break
		}

		if err := c.sleepFunc(ctx, c.pollInterval); err != nil {
			return res, fmt.Errorf("cmsapi: polling build %d: %w", buildID, err)
		}
	}

	if res.BuildStatus != StatusSuccess {
		res.Status = res.BuildStatus

		return res, fmt.Errorf("%w: build %d %s", ErrBuildFailed, buildID, res.BuildStatus)
	}

	// Builds without a deploy (auto-deploy disabled) end here.
	if res.DeployID == 0 {
		res.Status = res.BuildStatus

		return res, nil
	}

	for {
		ds, err := c.GetDeployStatus(ctx, accountID, project, res.DeployID)
		if err != nil {
			return res, err
		}

		res.Status = ds.Status

		if IsTerminalStatus(ds.Status) {
			break
		}

		if err := c.sleepFunc(ctx, c.pollInterval); err != nil {
			return res, fmt.Errorf("cmsapi: polling deploy %d: %w", res.DeployID, err)
		}
	}

	c.logger.Info("deploy finished",
		slog.Int64("build_id", buildID),
		slog.Int64("deploy_id", res.DeployID),
		slog.String("status", res.Status),
	)

	if res.Status != StatusSuccess {
		return res, fmt.Errorf("%w: deploy %d %s", ErrBuildFailed, res.DeployID, res.Status)
	}

	return res, nil
}

// multipartFile reads localPath into a multipart/form-data body with a
// single "file" part.
func multipartFile(localPath string) ([]byte, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("cmsapi: opening %s: %w", localPath, err)
	}
	defer f.Close()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, "", fmt.Errorf("cmsapi: creating form file: %w", err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("cmsapi: reading %s: %w", localPath, err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("cmsapi: closing multipart body: %w", err)
	}

	return buf.Bytes(), mw.FormDataContentType(), nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
