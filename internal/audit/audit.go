package audit

import (
	"context"

	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

// Audit actions of the landing client.
const (
	ActionLoginRequested = "auth.login_requested"
	ActionLogin          = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionLogout         = "auth.logout"
	ActionRename         = "auth.rename"
	ActionOrderCreate    = "order.create"
	ActionOrderVerify    = "order.verify"
	ActionOrderDelete    = "order.delete"
	ActionChatConnect    = "chat.connect"
	ActionChatDisconnect = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
)

// Log emits a structured audit entry via the context logger. actor is the
// email of the acting user, empty for anonymous visitors.
func Log(ctx context.Context, action, actor, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldEmail, actor).
		Msg(msg)
}

// LogTarget emits an audit entry about a specific object, e.g. an order.
func LogTarget(ctx context.Context, action, actor string, targetID int, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldEmail, actor).
		Int(FieldTargetID, targetID).
		Msg(msg)
}
