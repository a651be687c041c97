// Package devsync implements the local development watch-and-sync loop: it
// watches a project's source directory, decides per change whether the local
// dev server can apply it or it must be uploaded, uploads changes into a
// staged remote build with bounded concurrency, and drives the build through
// queue, deploy and re-provision.
package devsync

import (
	"context"
	"fmt"
	"time"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
	"github.com/parthd4/hubspot-cli/internal/config"
)

// ChangeKind identifies the type of file-system change.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
	ChangeDirectoryRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeDirectoryRemoved:
		return "directory removed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeEvent is one observed change under the project source directory.
type ChangeEvent struct {
	Kind         ChangeKind
	AbsolutePath string
	// RemotePath is relative to the source root, NFC-normalized with forward
	// slashes.
	RemotePath string
	// Supported is set once the dev server reports it can apply the change
	// without an upload.
	Supported bool
}

// IsDelete reports whether the change removes a file or directory.
func (e ChangeEvent) IsDelete() bool {
	return e.Kind == ChangeRemoved || e.Kind == ChangeDirectoryRemoved
}

// UploadPermission governs what happens to a change that requires an upload.
// It is fixed for the session.
type UploadPermission string

const (
	PermissionAlways UploadPermission = config.UploadAlways
	PermissionManual UploadPermission = config.UploadManual
	PermissionNever  UploadPermission = config.UploadNever
)

// ParseUploadPermission validates s as an UploadPermission.
func ParseUploadPermission(s string) (UploadPermission, error) {
	switch p := UploadPermission(s); p {
	case PermissionAlways, PermissionManual, PermissionNever:
		return p, nil
	default:
		return "", fmt.Errorf("devsync: invalid upload permission %q", s)
	}
}

// DevModeStatus is the observational state shown to the user.
type DevModeStatus int

const (
	StatusClean DevModeStatus = iota
	StatusSupportedChange
	StatusUploadPending
	StatusManualUpload
	StatusManualUploadRequired
	StatusNoUploadsAllowed
)

func (s DevModeStatus) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusSupportedChange:
		return "supportedChange"
	case StatusUploadPending:
		return "uploadPending"
	case StatusManualUpload:
		return "manualUpload"
	case StatusManualUploadRequired:
		return "manualUploadRequired"
	case StatusNoUploadsAllowed:
		return "noUploadsAllowed"
	default:
		return fmt.Sprintf("DevModeStatus(%d)", int(s))
	}
}

// Message is the status line rendered for s.
func (s DevModeStatus) Message() string {
	switch s {
	case StatusClean:
		return "Watching for changes. Everything is up to date."
	case StatusSupportedChange:
		return "Change applied by the local dev server."
	case StatusUploadPending:
		return "Uploading changes to the staged build..."
	case StatusManualUpload:
		return "Uploading approved changes and building..."
	case StatusManualUploadRequired:
		return "Changes require an upload. Press y to upload and build, n to keep them pending."
	case StatusNoUploadsAllowed:
		return "A change requires an upload, but uploads are disabled for this session."
	default:
		return s.String()
	}
}

// StopReason records why the watch session ended.
type StopReason int

const (
	StopQuit            StopReason = iota // user pressed q
	StopInterrupt                         // SIGINT / SIGTERM / ctrl+c
	StopHangup                            // terminal went away; staged build is kept
	StopRemoteCancelled                   // staged build was cancelled elsewhere
	StopFatal                             // unrecoverable provisioning or watcher error
)

func (r StopReason) String() string {
	switch r {
	case StopQuit:
		return "quit"
	case StopInterrupt:
		return "interrupt"
	case StopHangup:
		return "hangup"
	case StopRemoteCancelled:
		return "remote cancelled"
	case StopFatal:
		return "fatal"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Process exit codes returned by Stop.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// BuildAPI is the slice of the remote projects API the dev loop needs.
// *cmsapi.Client satisfies it.
type BuildAPI interface {
	ProvisionBuild(ctx context.Context, accountID int64, project, platformVersion string) (cmsapi.Build, error)
	UploadFile(ctx context.Context, accountID int64, project, localPath, remotePath string) error
	DeleteFile(ctx context.Context, accountID int64, project, remotePath string) error
	QueueBuild(ctx context.Context, accountID int64, project, platformVersion string) (cmsapi.Build, error)
	CancelStagedBuild(ctx context.Context, accountID int64, project string) error
	PollDeployStatus(ctx context.Context, accountID int64, project string, buildID int64) (cmsapi.DeployResult, error)
}

// NotifyResult is the dev server's verdict on a change.
type NotifyResult struct {
	UploadRequired bool
	// Detail is an optional bridge-specific payload passed back to Execute.
	Detail map[string]any
}

// DevServerConfig is handed to DevServer.Start.
type DevServerConfig struct {
	AccountID   int64
	ProjectName string
	ProjectDir  string
	SourceDir   string
}

// DevServer is the local dev server bridge.
type DevServer interface {
	Start(ctx context.Context, cfg DevServerConfig) error
	Notify(ctx context.Context, ev ChangeEvent) (NotifyResult, error)
	Execute(ctx context.Context, ev ChangeEvent, res NotifyResult) error
	Cleanup(ctx context.Context) error
}

// StatusRenderer displays keyed status lines. Implementations must be safe
// for concurrent use; upload workers report failures from their own
// goroutines.
type StatusRenderer interface {
	Upsert(key, line string)
	Remove(key string)
}

// BuildRecord is one finished build cycle.
type BuildRecord struct {
	AccountID     int64
	Project       string
	BuildID       int64
	DeployID      int64
	BuildStatus   string
	DeployStatus  string
	Deployed      bool
	Reprovisioned bool
	Error         string
	FinishedAt    time.Time
}

// BuildRecorder persists finished builds. A failed record is logged and
// does not affect the session.
type BuildRecorder interface {
	RecordBuild(ctx context.Context, rec BuildRecord) error
}

// ChangeSource produces change events until ctx is canceled. Run returns nil
// on cancellation.
type ChangeSource interface {
	Run(ctx context.Context, out chan<- ChangeEvent) error
}

// Status line keys.
const (
	KeyDevMode   = "devMode"
	KeyBuild     = "build"
	KeyFailures  = "uploadFailures"
	KeyDevServer = "devServer"
)
