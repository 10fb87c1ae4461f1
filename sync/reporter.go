package sync

import (
	"context"

	"go.uber.org/zap"
)

// ErrorReporter receives structured failure reports. Implementations must not
// fail back to the caller.
type ErrorReporter interface {
	LogError(ctx context.Context, errContext string, detail ErrorDetail)
}

// ZapErrorReporter writes failure reports to a zap logger.
type ZapErrorReporter struct {
	Logger *zap.Logger
}

func (r ZapErrorReporter) LogError(ctx context.Context, errContext string, detail ErrorDetail) {
	logger := r.Logger
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.Int("site_id", detail.SiteID),
		zap.String("context", errContext),
		zap.String("code", string(detail.Code)),
		zap.String("message", detail.Message),
	}
	if detail.RemoteCode != 0 {
		fields = append(fields, zap.Int("remote_code", detail.RemoteCode))
	}
	if detail.MemberID != 0 {
		fields = append(fields, zap.Int("member_id", detail.MemberID))
	}
	if detail.ListID != "" {
		fields = append(fields, zap.String("list_id", detail.ListID))
	}
	logger.Error("campaigner sync failed", fields...)
}

// MultiErrorReporter fans a report out to every reporter in order.
type MultiErrorReporter []ErrorReporter

func (m MultiErrorReporter) LogError(ctx context.Context, errContext string, detail ErrorDetail) {
	for _, r := range m {
		if r != nil {
			r.LogError(ctx, errContext, detail)
		}
	}
}
