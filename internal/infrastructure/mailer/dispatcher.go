package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/pkg/config"
)

var _ ports.CriticalDispatcher = (*Dispatcher)(nil)

// Dispatcher despacho urgente de alertas críticas por correo SMTP.
type Dispatcher struct {
	cfg config.SMTPConfig
}

// NewDispatcher construye el despachador con la configuración SMTP.
func NewDispatcher(cfg config.SMTPConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

// Dispatch envía la alerta a los destinatarios configurados. El caller registra
// el error en el log; nunca se propaga a la mutación que originó la alerta.
func (d *Dispatcher) Dispatch(_ context.Context, alert *entity.Alert) error {
	if d.cfg.Host == "" || len(d.cfg.To) == 0 {
		return fmt.Errorf("smtp sin configurar: alerta %s no enviada", alert.ID)
	}

	e := email.NewEmail()
	e.From = d.cfg.From
	e.To = d.cfg.To
	e.Subject = fmt.Sprintf("[%s] Alerta de inventario %s", alert.Severity, alert.Type)
	e.Text = []byte(fmt.Sprintf(
		"Ítem: %s\nTipo: %s\nSeveridad: %s\n\n%s\n\nUmbral: %s\nValor actual: %s\nGenerada: %s\n",
		alert.ItemID, alert.Type, alert.Severity, alert.Message,
		alert.Threshold, alert.CurrentValue, alert.CreatedAt.Format("2006-01-02 15:04:05"),
	))

	auth := smtp.PlainAuth("", d.cfg.User, d.cfg.Password, d.cfg.Host)
	if err := e.Send(d.cfg.Addr(), auth); err != nil {
		return fmt.Errorf("enviar alerta %s: %w", alert.ID, err)
	}
	return nil
}
