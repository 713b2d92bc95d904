package inventory

import (
	"fmt"
	"time"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// DueState situación de una obligación de devolución.
type DueState string

const (
	DueOnTime  DueState = "on_time"
	DueSoon    DueState = "due_soon"
	DueOverdue DueState = "overdue"
)

// DueItem material en posesión con periodicidad configurada.
type DueItem struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku"`
	Quantity        decimal.Decimal `json:"quantity"`
	FirstWithdrawal time.Time       `json:"first_withdrawal"`
	DaysHeld        int             `json:"days_held"`
	MaxDays         int             `json:"max_days"`
	State           DueState        `json:"state"`
}

// DaysHeld días completos transcurridos desde el retiro.
func DaysHeld(first, now time.Time) int {
	if now.Before(first) {
		return 0
	}
	return int(now.Sub(first) / (24 * time.Hour))
}

// Classify clasifica los días en posesión frente al máximo permitido.
// warningDays define la ventana "por vencer" antes del máximo.
func Classify(daysHeld, maxDays, warningDays int) DueState {
	switch {
	case daysHeld >= maxDays:
		return DueOverdue
	case daysHeld >= maxDays-warningDays:
		return DueSoon
	default:
		return DueOnTime
	}
}

// DueItems cruza la posesión actual con las periodicidades activas del colaborador.
// Los pares sin periodicidad (o con periodicidad inactiva) no generan obligación.
func DueItems(possession []PossessionItem, periodicities []*entity.CollaboratorPeriodicity, now time.Time, warningDays int) []DueItem {
	limits := make(map[string]int, len(periodicities))
	for _, p := range periodicities {
		if p == nil || !p.Active || p.MaxDays <= 0 {
			continue
		}
		limits[p.ProductID] = p.MaxDays
	}
	out := make([]DueItem, 0, len(limits))
	for _, it := range possession {
		maxDays, ok := limits[it.ProductID]
		if !ok {
			continue
		}
		days := DaysHeld(it.FirstWithdrawal, now)
		out = append(out, DueItem{
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			FirstWithdrawal: it.FirstWithdrawal,
			DaysHeld:        days,
			MaxDays:         maxDays,
			State:           Classify(days, maxDays, warningDays),
		})
	}
	return out
}

// ParseDueState valida un estado recibido como filtro.
func ParseDueState(s string) (DueState, error) {
	switch DueState(s) {
	case DueOnTime, DueSoon, DueOverdue:
		return DueState(s), nil
	}
	return "", fmt.Errorf("estado de vencimiento desconocido %q", s)
}
