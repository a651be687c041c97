package devsync

import (
	"context"
	"log/slog"
)

// classifyChange asks the dev server whether ev needs an upload. If the
// bridge fails, the change is treated as requiring one and ok is false so
// the caller can surface a warning.
func classifyChange(ctx context.Context, ds DevServer, ev ChangeEvent, logger *slog.Logger) (res NotifyResult, ok bool) {
	if ds == nil {
		return NotifyResult{UploadRequired: true}, true
	}

	res, err := ds.Notify(ctx, ev)
	if err != nil {
		logger.Warn("dev server notify failed, assuming upload is required",
			slog.String("path", ev.RemotePath),
			slog.String("error", err.Error()),
		)

		return NotifyResult{UploadRequired: true}, false
	}

	return res, true
}
