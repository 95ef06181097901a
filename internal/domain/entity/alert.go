package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType clasifica la condición que disparó la alerta.
type AlertType string

const (
	AlertTypeLowStock  AlertType = "LOW_STOCK"
	AlertTypeExpiry    AlertType = "EXPIRY"
	AlertTypeOverstock AlertType = "OVERSTOCK"
	AlertTypeReorder   AlertType = "REORDER"
)

// AlertSeverity nivel de severidad de una alerta.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert la produce únicamente el barrido del monitor. La única mutación permitida
// después de creada es el acuse de recibo (AcknowledgedAt/By).
type Alert struct {
	ID           string
	ItemID       string
	Type         AlertType
	Severity     AlertSeverity
	Message      string
	Threshold    decimal.Decimal
	CurrentValue decimal.Decimal
	CreatedAt    time.Time

	AcknowledgedAt *time.Time
	AcknowledgedBy string
}

// Acknowledged indica si la alerta ya tiene acuse de recibo.
func (a *Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}
