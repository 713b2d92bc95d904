package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

// RegisterMovementRequest body para POST /api/movements.
type RegisterMovementRequest struct {
	ProductID      string           `json:"product_id"`
	Kind           string           `json:"kind"` // receipt | withdrawal | write_off | supplier_return
	Quantity       decimal.Decimal  `json:"quantity"`
	CollaboratorID string           `json:"collaborator_id,omitempty"`
	HandledByID    string           `json:"handled_by_id,omitempty"`
	Tag            string           `json:"tag,omitempty"`
	Lessor         string           `json:"lessor,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Purpose        string           `json:"purpose,omitempty"`
	Timestamp      *time.Time       `json:"timestamp,omitempty"`
}

// QuickWithdrawalRequest body para POST /api/movements/quick-withdrawal.
type QuickWithdrawalRequest struct {
	Tag            string          `json:"tag"`
	CollaboratorID string          `json:"collaborator_id"`
	HandledByID    string          `json:"handled_by_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Notes          string          `json:"notes,omitempty"`
}

// CancelMovementRequest body para POST /api/movements/:id/cancel.
type CancelMovementRequest struct {
	Reason string `json:"reason"`
}

// MovementResponse salida de un movimiento.
type MovementResponse struct {
	ID             string              `json:"id"`
	ShortID        string              `json:"short_id"`
	ProductID      string              `json:"product_id"`
	ProductName    string              `json:"product_name"`
	SKU            string              `json:"sku"`
	Kind           string              `json:"kind"`
	KindLabel      string              `json:"kind_label"`
	Quantity       decimal.Decimal     `json:"quantity"`
	SignedQuantity decimal.Decimal     `json:"signed_quantity"`
	QuantityBefore decimal.Decimal     `json:"quantity_before"`
	QuantityAfter  decimal.Decimal     `json:"quantity_after"`
	Timestamp      time.Time           `json:"timestamp"`
	Actor          string              `json:"actor"`
	CollaboratorID string              `json:"collaborator_id,omitempty"`
	HandledByID    string              `json:"handled_by_id,omitempty"`
	Tag            string              `json:"tag,omitempty"`
	Lessor         string              `json:"lessor,omitempty"`
	UnitPrice      decimal.NullDecimal `json:"unit_price"`
	TotalValue     decimal.NullDecimal `json:"total_value"`
	Notes          string              `json:"notes,omitempty"`
	Purpose        string              `json:"purpose,omitempty"`
	Status         string              `json:"status"`
	CancelReason   string              `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
}

// MovementListResponse historial.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
	Total int                `json:"total"`
}

// NewMovementResponse mapea la entidad a la respuesta.
func NewMovementResponse(m *entity.Movement) MovementResponse {
	return MovementResponse{
		ID:             m.ID,
		ShortID:        m.ShortID(),
		ProductID:      m.ProductID,
		ProductName:    m.ProductName,
		SKU:            m.SKU,
		Kind:           string(m.Kind),
		KindLabel:      m.Kind.Label(),
		Quantity:       m.Quantity,
		SignedQuantity: m.SignedQuantity(),
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		Timestamp:      m.Timestamp,
		Actor:          m.Actor,
		CollaboratorID: m.CollaboratorID,
		HandledByID:    m.HandledByID,
		Tag:            m.Tag,
		Lessor:         m.Lessor,
		UnitPrice:      m.UnitPrice,
		TotalValue:     m.TotalValue,
		Notes:          m.Notes,
		Purpose:        m.Purpose,
		Status:         string(m.Status),
		CancelReason:   m.CancelReason,
		CancelledAt:    m.CancelledAt,
	}
}

// NewMovementListResponse mapea una lista de movimientos.
func NewMovementListResponse(list []*entity.Movement) MovementListResponse {
	items := make([]MovementResponse, 0, len(list))
	for _, m := range list {
		items = append(items, NewMovementResponse(m))
	}
	return MovementListResponse{Items: items, Total: len(items)}
}

func isTemp(id string) bool {
	return strings.HasPrefix(id, entity.TempIDPrefix)
}
