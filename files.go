package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
	"github.com/parthd4/hubspot-cli/internal/devsync"
)

// localFile is one file selected for upload.
type localFile struct {
	abs  string
	rel  string // forward slashes, NFC, relative to the walk root
	size int64
}

// collectFiles walks root and returns the files the filter admits, sorted by
// relative path. Ignored directories are not descended into.
func collectFiles(root string, filter *devsync.Filter) ([]localFile, error) {
	var files []localFile

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		rel = cmsapi.NormalizeRemotePath(filepath.ToSlash(rel))

		if d.IsDir() {
			if p != root && filter.ShouldIgnore(rel, true) {
				return filepath.SkipDir
			}

			return nil
		}

		if filter.ShouldIgnore(rel, false) || !filter.IsAllowedExtension(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, localFile{abs: p, rel: rel, size: info.Size()})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	return files, nil
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local-path> <remote-path>",
		Short: "Upload a file or folder to the design manager",
		Long: `Upload a local file or folder to the design manager.

A file is uploaded to <remote-path>. A folder's contents are uploaded below
<remote-path>, skipping files matched by the ignore file or with extensions
outside allowed_extensions.`,
		Args: cobra.ExactArgs(2),
		RunE: runUpload,
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	localPath, remotePath := args[0], cmsapi.NormalizeRemotePath(args[1])

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local path: %w", err)
	}

	client, err := newAPIClient(cc)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	if !fi.IsDir() {
		if err := client.UploadCMSFile(ctx, cc.Cfg.AccountID, localPath, remotePath); err != nil {
			return err
		}

		cc.Statusf("Uploaded %s (%s)\n", remotePath, formatSize(fi.Size()))

		return nil
	}

	filter := devsync.NewFilter(filepath.Join(localPath, cc.Cfg.IgnoreFile), cc.Cfg.AllowedExtensions, cc.Logger)

	files, err := collectFiles(localPath, filter)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		cc.Statusf("Nothing to upload in %s\n", localPath)

		return nil
	}

	res := uploadFiles(ctx, client, cc.Cfg.AccountID, files, remotePath, cc.Cfg.UploadConcurrency, cc.Logger)

	cc.Statusf("Uploaded %d of %d files (%s)\n", res.uploaded, len(files), formatSize(res.bytes))

	if len(res.failed) > 0 {
		for _, f := range res.failed {
			cc.Statusf("  failed: %s\n", f)
		}

		return fmt.Errorf("%d file(s) failed to upload", len(res.failed))
	}

	return ctx.Err()
}

// cmsUploader is the part of *cmsapi.Client the upload command uses.
type cmsUploader interface {
	UploadCMSFile(ctx context.Context, accountID int64, localPath, remotePath string) error
}

type uploadResult struct {
	uploaded int
	bytes    int64
	failed   []string
}

// uploadFiles uploads files below remoteRoot with at most limit in flight.
// A failed file does not stop the others; cancellation does.
func uploadFiles(
	ctx context.Context, client cmsUploader, accountID int64, files []localFile,
	remoteRoot string, limit int, logger *slog.Logger,
) uploadResult {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, limit))

	var (
		mu  sync.Mutex
		res uploadResult
	)

	for _, f := range files {
		g.Go(func() error {
			dest := path.Join(remoteRoot, f.rel)

			err := client.UploadCMSFile(gctx, accountID, f.abs, dest)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}

				logger.Warn("upload failed", slog.String("path", dest), slog.String("error", err.Error()))
				res.failed = append(res.failed, dest)

				return nil
			}

			res.uploaded++
			res.bytes += f.size

			return nil
		})
	}

	_ = g.Wait()

	sort.Strings(res.failed)

	return res
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dest>",
		Short: "Move or rename a design manager file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			client, err := newAPIClient(cc)
			if err != nil {
				return err
			}

			src, dest := cmsapi.NormalizeRemotePath(args[0]), cmsapi.NormalizeRemotePath(args[1])

			if err := client.MoveFile(shutdownContext(cmd.Context(), cc.Logger), cc.Cfg.AccountID, src, dest); err != nil {
				return err
			}

			cc.Statusf("Moved %s to %s\n", src, dest)

			return nil
		},
	}
}
