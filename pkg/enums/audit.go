package enums

// AuditAction names the operation recorded in audit_logs.
type AuditAction string

const (
	AuditActionReserve            AuditAction = "RESERVE"
	AuditActionApproveApplication AuditAction = "APPROVE_APPLICATION"
	AuditActionRejectApplication  AuditAction = "REJECT_APPLICATION"
	AuditActionCheckIn            AuditAction = "CHECK_IN"
	AuditActionCheckOut           AuditAction = "CHECK_OUT"
	AuditActionReconcile          AuditAction = "RECONCILE"
)

// AuditEntityType names the kind of row an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityRoomApplication AuditEntityType = "ROOM_APPLICATION"
	AuditEntityStudent         AuditEntityType = "STUDENT"
	AuditEntityRoom            AuditEntityType = "ROOM"
)
