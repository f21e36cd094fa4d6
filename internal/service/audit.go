package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Elvismn/Scholalink3.0/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditEntry describes one audit row before the JSON columns are encoded.
type auditEntry struct {
	actorID    string
	action     string
	resourceID string
	oldValues  interface{}
	newValues  interface{}
	meta       models.RequestMeta
}

// recordAudit persists an audit row. Failures are logged and swallowed.
func recordAudit(ctx context.Context, w auditWriter, logger *zap.Logger, e auditEntry) {
	if w == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    e.action,
		Resource:  "user",
		IPAddress: e.meta.IP,
		UserAgent: e.meta.UserAgent,
	}
	if e.actorID != "" {
		actor := e.actorID
		entry.UserID = &actor
	}
	if e.resourceID != "" {
		resource := e.resourceID
		entry.ResourceID = &resource
	}
	entry.OldValues = encodeAuditValues(e.oldValues)
	entry.NewValues = encodeAuditValues(e.newValues)

	if err := w.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", e.action), zap.Error(err))
	}
}

func encodeAuditValues(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
