package audit

import (
	"context"

	"github.com/weiawesome/wes-io-watchparty/pkg/log"
)

// Audit actions for partyd.
const (
	ActionIssueToken  = "auth.token"
	ActionCreateParty = "party.create"
	ActionJoinParty   = "party.join"
	ActionLeaveParty  = "party.leave"
	ActionCloseParty  = "party.close"
	ActionStartVideo  = "party.start_video"
	ActionToggleLike  = "video.like"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, username string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, username string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Str(FieldDetail, detail).
		Msg(msg)
}
