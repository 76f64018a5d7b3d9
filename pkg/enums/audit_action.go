package enums

// AuditAction is the action_type recorded for human-readable business events.
type AuditAction string

const (
	AuditOrderCreated          AuditAction = "order_created"
	AuditOrderConfirmed        AuditAction = "order_confirmed"
	AuditStockAllocated        AuditAction = "stock_allocated"
	AuditStockReleased         AuditAction = "stock_released"
	AuditProductionTaskCreated AuditAction = "production_task_created"
	AuditProductionTaskUpdated AuditAction = "production_task_status_changed"
	AuditProductionOutput      AuditAction = "production_output_reported"
	AuditOrderStatusChanged    AuditAction = "order_status_changed"
	AuditOrderCancelled        AuditAction = "order_cancelled"
	AuditDataQuality           AuditAction = "data_quality_flag"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
