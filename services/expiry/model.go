package expiry

import "time"

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run records one execution of the expiry sweep.
type Run struct {
	ID                 string     `gorm:"column:id;primaryKey" json:"id"`
	Status             RunStatus  `gorm:"column:status;type:varchar(20);not null;default:'running'" json:"status"`
	EnrollmentsExpired int64      `gorm:"column:enrollments_expired;not null;default:0" json:"enrollments_expired"`
	InstancesExpired   int64      `gorm:"column:instances_expired;not null;default:0" json:"instances_expired"`
	ErrorMsg           *string    `gorm:"column:error_msg;type:text" json:"error_msg"`
	StartedAt          time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Run) TableName() string { return "expiry_sweep_runs" }

func Models() []any {
	return []any{&Run{}}
}
