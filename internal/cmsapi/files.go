package cmsapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// UploadCMSFile uploads a local file to the design manager at remotePath,
// creating or replacing it.
func (c *Client) UploadCMSFile(ctx context.Context, accountID int64, localPath, remotePath string) error {
	c.logger.Info("uploading file",
		slog.String("local_path", localPath),
		slog.String("remote_path", remotePath),
	)

	body, contentType, err := multipartFile(localPath)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, http.MethodPost,
		"/content/filemapper/v1/upload/"+escapePath(remotePath),
		portalQuery(accountID), contentType, body)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}

	drainClose(resp)

	return nil
}

// MoveFile renames a design manager file or folder from src to dest.
func (c *Client) MoveFile(ctx context.Context, accountID int64, src, dest string) error {
	c.logger.Info("moving file",
		slog.String("src", src),
		slog.String("dest", dest),
	)

	q := portalQuery(accountID)
	q.Set("path", NormalizeRemotePath(dest))

	resp, err := c.Do(ctx, http.MethodPut,
		"/content/filemapper/v1/rename/"+escapePath(src), q, "", nil)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dest, err)
	}

	drainClose(resp)

	return nil
}
