package app

import (
	"encoding/json"

	"smartfactory/api/internal/escalate"
	"smartfactory/api/internal/store"
)

// Response payloads are shaped here so store models never leak their
// internal field names onto the wire.

func incidentPayload(item store.Incident) map[string]any {
	payload := map[string]any{
		"id":                   item.ID,
		"title":                item.Title,
		"description":          item.Description,
		"incidentType":         item.IncidentType,
		"location":             item.Location,
		"priority":             item.Priority,
		"status":               item.Status,
		"reporterId":           item.ReporterID,
		"assignedTo":           item.AssignedTo,
		"assignedDepartmentId": item.AssignedDepartmentID,
		"handlerLevel":         item.HandlerLevel,
		"escalatedTo":          item.EscalatedTo,
		"escalationLevel":      item.EscalationLevel,
		"firstResponseAt":      item.FirstResponseAt,
		"escalatedAt":          item.EscalatedAt,
		"resolvedAt":           item.ResolvedAt,
		"createdAt":            item.CreatedAt,
		"updatedAt":            item.UpdatedAt,
	}
	if item.SuggestionJSON != "" {
		payload["suggestion"] = json.RawMessage(item.SuggestionJSON)
	}
	return payload
}

func ideaPayload(item store.Idea) map[string]any {
	return map[string]any{
		"id":               item.ID,
		"title":            item.Title,
		"description":      item.Description,
		"category":         item.Category,
		"status":           item.Status,
		"submitterId":      item.SubmitterID,
		"departmentId":     item.DepartmentID,
		"handlerLevel":     item.HandlerLevel,
		"currentHandlerId": item.CurrentHandlerID,
		"escalationLevel":  item.EscalationLevel,
		"escalationReason": item.EscalationReason,
		"escalatedAt":      item.EscalatedAt,
		"createdAt":        item.CreatedAt,
		"updatedAt":        item.UpdatedAt,
	}
}

func escalationRecordPayload(record store.EscalationRecord) map[string]any {
	return map[string]any{
		"id":            record.ID,
		"referenceType": record.ReferenceType,
		"referenceId":   record.ReferenceID,
		"fromLevel":     record.FromLevel,
		"toLevel":       record.ToLevel,
		"fromHandlerId": record.FromHandlerID,
		"toHandlerId":   record.ToHandlerID,
		"reason":        record.Reason,
		"isAutomatic":   record.IsAutomatic,
		"escalatedBy":   record.EscalatedBy,
		"createdAt":     record.CreatedAt,
	}
}

func auditEntryPayload(entry store.AuditEntry) map[string]any {
	payload := map[string]any{
		"id":            entry.ID,
		"referenceType": entry.ReferenceType,
		"referenceId":   entry.ReferenceID,
		"action":        entry.Action,
		"performedBy":   entry.PerformedBy,
		"createdAt":     entry.CreatedAt,
	}
	if entry.Details != "" {
		payload["details"] = json.RawMessage(entry.Details)
	}
	return payload
}

func historyPayload(history ItemHistory) map[string]any {
	escalations := make([]map[string]any, 0, len(history.Escalations))
	for _, record := range history.Escalations {
		escalations = append(escalations, escalationRecordPayload(record))
	}
	audit := make([]map[string]any, 0, len(history.Audit))
	for _, entry := range history.Audit {
		audit = append(audit, auditEntryPayload(entry))
	}
	return map[string]any{
		"escalations": escalations,
		"audit":       audit,
	}
}

// notificationPayload resolves title and body against the requester's
// language, falling back to the vi copy when the ja copy is missing.
func notificationPayload(n store.Notification, language string) map[string]any {
	title, message := n.Title, n.Message
	if language == "ja" {
		if n.TitleJA != "" {
			title = n.TitleJA
		}
		if n.MessageJA != "" {
			message = n.MessageJA
		}
	}
	payload := map[string]any{
		"id":            n.ID,
		"type":          n.Type,
		"title":         title,
		"message":       message,
		"referenceType": n.ReferenceType,
		"referenceId":   n.ReferenceID,
		"actionUrl":     n.ActionURL,
		"isRead":        n.IsRead,
		"readAt":        n.ReadAt,
		"createdAt":     n.CreatedAt,
	}
	if n.Metadata != "" {
		payload["metadata"] = json.RawMessage(n.Metadata)
	}
	return payload
}

func notificationListPayload(list NotificationList, language string) map[string]any {
	notifications := make([]map[string]any, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		notifications = append(notifications, notificationPayload(n, language))
	}
	return map[string]any{
		"notifications": notifications,
		"unreadCount":   list.UnreadCount,
	}
}

func deviceTokenPayload(token store.DeviceToken) map[string]any {
	return map[string]any{
		"id":             token.ID,
		"token":          token.Token,
		"deviceName":     token.DeviceName,
		"devicePlatform": token.DevicePlatform,
		"isActive":       token.IsActive,
		"createdAt":      token.CreatedAt,
	}
}

func assignmentPayload(a store.DepartmentAssignment) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"incidentId":      a.IncidentID,
		"departmentId":    a.DepartmentID,
		"assignedBy":      a.AssignedBy,
		"assignedTo":      a.AssignedTo,
		"taskDescription": a.TaskDescription,
		"priority":        a.Priority,
		"status":          a.Status,
		"createdAt":       a.CreatedAt,
	}
}

func batchResultPayload(result escalate.BatchResult) map[string]any {
	assigned := make([]map[string]any, 0, len(result.Assigned))
	for _, a := range result.Assigned {
		assigned = append(assigned, assignmentPayload(a))
	}
	return map[string]any{
		"assigned": assigned,
		"failed":   result.Failed,
	}
}
