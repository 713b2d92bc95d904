package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Queue cola de sincronización usada por el ledger.
type Queue interface {
	EnqueueTx(r repository.Repositories, req syncqueue.Request) (*entity.PendingOperation, error)
	OnConfirm(collection string, fn syncqueue.ConfirmFunc)
	RefreshDepth()
}

// Connectivity estado de red y drenado inmediato.
type Connectivity interface {
	IsOnline() bool
	Sync(ctx context.Context) (syncqueue.Result, error)
}

// Recorder métricas del ledger.
type Recorder interface {
	MovementRecorded(kind, status string)
	MovementRejected(reason string)
}

type noopRecorder struct{}

func (noopRecorder) MovementRecorded(string, string) {}
func (noopRecorder) MovementRejected(string)         {}

// Options configuración opcional del ledger.
type Options struct {
	RemoteTimeout time.Duration
	Logger        zerolog.Logger
	Metrics       Recorder
	Now           func() time.Time
}

// Ledger registra movimientos append-only y mantiene la cantidad de cada producto como
// proyección del ledger. Toda escritura local deja su operación pendiente en la misma
// transacción; con conexión, la cola se drena enseguida.
type Ledger struct {
	txRunner      ports.TxRunner
	repos         repository.Repositories
	queue         Queue
	conn          Connectivity
	remote        ports.RemoteStore
	locks         *keyedMutex
	remoteTimeout time.Duration
	log           zerolog.Logger
	metrics       Recorder
	now           func() time.Time
}

// New construye el ledger y registra la confirmación de movimientos en la cola.
func New(txRunner ports.TxRunner, repos repository.Repositories, queue Queue, conn Connectivity, remote ports.RemoteStore, opts Options) *Ledger {
	l := &Ledger{
		txRunner:      txRunner,
		repos:         repos,
		queue:         queue,
		conn:          conn,
		remote:        remote,
		locks:         newKeyedMutex(),
		remoteTimeout: opts.RemoteTimeout,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if l.remoteTimeout <= 0 {
		l.remoteTimeout = syncqueue.DefaultRemoteTimeout
	}
	if l.metrics == nil {
		l.metrics = noopRecorder{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	queue.OnConfirm(entity.CollectionMovements, confirmMovement)
	return l
}

// confirmMovement pasa a confirmed el movimiento que el remoto acaba de aceptar.
func confirmMovement(r repository.Repositories, id string) error {
	m, err := r.Movements.GetByID(id)
	if err != nil || m == nil {
		return err
	}
	if m.Status != entity.MovementPendingSync {
		return nil
	}
	m.Status = entity.MovementConfirmed
	return r.Movements.UpdateStatus(m)
}

// MovementInput datos para registrar un movimiento.
type MovementInput struct {
	ProductID      string
	Kind           entity.MovementKind
	Quantity       decimal.Decimal
	Actor          string
	CollaboratorID string
	HandledByID    string
	Tag            string
	Lessor         string
	UnitPrice      *decimal.Decimal
	Notes          string
	Purpose        string
	Timestamp      time.Time // cero = ahora
}

func (in MovementInput) validate() error {
	switch {
	case !in.Kind.Valid():
		return fmt.Errorf("tipo de movimiento %q: %w", in.Kind, domain.ErrInvalidInput)
	case !in.Quantity.IsPositive():
		return fmt.Errorf("la cantidad debe ser positiva: %w", domain.ErrInvalidInput)
	case strings.TrimSpace(in.ProductID) == "":
		return fmt.Errorf("producto requerido: %w", domain.ErrInvalidInput)
	case strings.TrimSpace(in.Actor) == "":
		return fmt.Errorf("responsable requerido: %w", domain.ErrInvalidInput)
	case in.UnitPrice != nil && in.UnitPrice.IsNegative():
		return fmt.Errorf("precio unitario negativo: %w", domain.ErrInvalidInput)
	}
	return nil
}

// ApplyMovement valida y aplica un movimiento contra la cantidad actual del producto.
// Las salidas, bajas y devoluciones a proveedor fallan con ErrInsufficientStock si dejarían
// el stock negativo, sin crear movimiento ni cambiar la cantidad. Cada llamada exitosa agrega
// exactamente un movimiento.
func (l *Ledger) ApplyMovement(ctx context.Context, in MovementInput) (*entity.Movement, error) {
	if err := in.validate(); err != nil {
		l.metrics.MovementRejected("validation")
		return nil, err
	}
	productID, err := l.canonicalID(in.ProductID)
	if err != nil {
		return nil, err
	}
	if err := l.checkCollaborators(in); err != nil {
		l.metrics.MovementRejected("validation")
		return nil, err
	}

	unlock := l.locks.Lock(productID)
	var mov *entity.Movement
	err = l.txRunner.Run(ctx, func(r repository.Repositories) error {
		p, err := r.Products.GetByID(productID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("producto %s: %w", productID, domain.ErrNotFound)
		}
		if !p.Active {
			return fmt.Errorf("producto %s inactivo: %w", p.SKU, domain.ErrConflict)
		}
		mov, err = l.appendMovementTx(r, p, in)
		return err
	})
	unlock()
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.metrics.MovementRejected("insufficient_stock")
		}
		return nil, err
	}

	l.log.Info().Str("movement", mov.ID).Str("product", mov.ProductID).Str("kind", string(mov.Kind)).
		Str("quantity", mov.Quantity.String()).Msg("movimiento registrado")
	return l.afterWrite(ctx, mov)
}

// appendMovementTx agrega el movimiento, actualiza la proyección del producto y encola el insert
// con el ajuste de stock, todo con los repositorios de la transacción en curso.
func (l *Ledger) appendMovementTx(r repository.Repositories, p *entity.Product, in MovementInput) (*entity.Movement, error) {
	next, ok := inventory.Apply(p.Quantity, in.Kind, in.Quantity)
	if !ok {
		return nil, fmt.Errorf("%s: disponible %s, solicitado %s: %w", p.SKU, p.Quantity, in.Quantity, domain.ErrInsufficientStock)
	}
	seq, err := r.Sequences.Next(repository.SeqMovements)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	ts := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		ts = now
	}

	mov := &entity.Movement{
		ID:             entity.NewTempID(),
		Seq:            seq,
		ProductID:      p.ID,
		ProductName:    p.Name,
		SKU:            p.SKU,
		Kind:           in.Kind,
		Quantity:       in.Quantity,
		QuantityBefore: p.Quantity,
		QuantityAfter:  next,
		Timestamp:      ts,
		Actor:          strings.TrimSpace(in.Actor),
		CollaboratorID: in.CollaboratorID,
		HandledByID:    in.HandledByID,
		Tag:            firstNonEmpty(entity.NormalizeTag(in.Tag), p.Tag),
		Lessor:         firstNonEmpty(strings.TrimSpace(in.Lessor), p.Lessor),
		Notes:          in.Notes,
		Purpose:        in.Purpose,
		Status:         entity.MovementPendingSync,
	}
	switch {
	case in.UnitPrice != nil:
		mov.UnitPrice = decimal.NewNullDecimal(*in.UnitPrice)
	case p.UnitCost.IsPositive():
		mov.UnitPrice = decimal.NewNullDecimal(p.UnitCost)
	}
	if mov.UnitPrice.Valid {
		mov.TotalValue = decimal.NewNullDecimal(mov.UnitPrice.Decimal.Mul(in.Quantity))
	}

	if in.Kind == entity.MovementReceipt && in.UnitPrice != nil {
		p.UnitCost = inventory.WeightedAverageCost(p.Quantity, p.UnitCost, in.Quantity, *in.UnitPrice)
	}
	p.Quantity = next
	p.UpdatedAt = now

	if err := r.Movements.Create(mov); err != nil {
		return nil, err
	}
	if err := r.Products.Update(p); err != nil {
		return nil, err
	}
	remoteCopy := *mov
	remoteCopy.Status = entity.MovementConfirmed
	_, err = l.queue.EnqueueTx(r, syncqueue.Request{
		Kind:       entity.OperationInsert,
		Collection: entity.CollectionMovements,
		EntityID:   mov.ID,
		LocalID:    mov.ID,
		Payload:    &remoteCopy,
		Adjustment: syncqueue.StockDelta(p.ID, in.Kind.Delta(in.Quantity)),
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// afterWrite drena la cola si hay conexión y devuelve el movimiento tal como quedó.
func (l *Ledger) afterWrite(ctx context.Context, mov *entity.Movement) (*entity.Movement, error) {
	l.queue.RefreshDepth()
	l.syncIfOnline(ctx)
	current, err := l.repos.Movements.GetByID(mov.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		mov = current
	}
	l.metrics.MovementRecorded(string(mov.Kind), string(mov.Status))
	return mov, nil
}

func (l *Ledger) syncIfOnline(ctx context.Context) {
	if l.conn == nil || !l.conn.IsOnline() {
		return
	}
	if _, err := l.conn.Sync(ctx); err != nil {
		l.log.Warn().Err(err).Msg("sincronización inmediata falló, la operación queda en cola")
	}
}

// checkCollaborators valida las referencias a colaboradores (titular y quien atiende).
func (l *Ledger) checkCollaborators(in MovementInput) error {
	if in.CollaboratorID != "" {
		c, err := l.repos.Collaborators.GetByID(in.CollaboratorID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("colaborador %s: %w", in.CollaboratorID, domain.ErrNotFound)
		}
	}
	if in.HandledByID != "" {
		c, err := l.repos.Collaborators.GetByID(in.HandledByID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("colaborador %s: %w", in.HandledByID, domain.ErrNotFound)
		}
		if !c.CanHandleDeliveries {
			return fmt.Errorf("%s no puede atender entregas: %w", c.Name, domain.ErrInvalidInput)
		}
	}
	return nil
}

// canonicalID traduce un id temporal ya confirmado a su id permanente.
func (l *Ledger) canonicalID(id string) (string, error) {
	resolved, known, err := l.repos.IDs.Resolve(id)
	if err != nil {
		return "", err
	}
	if known && resolved != "" {
		return resolved, nil
	}
	return id, nil
}

// CancelMovement cancela un movimiento confirmado. Requiere conexión: el remoto es la
// autoridad para cancelar, así que el estado local solo cambia después de que el remoto
// acepte. El movimiento sigue en el historial como cancelado y la cantidad del producto
// vuelve a ser el neto de los movimientos no cancelados.
func (l *Ledger) CancelMovement(ctx context.Context, id, reason string) (*entity.Movement, error) {
	if l.conn == nil || !l.conn.IsOnline() {
		return nil, domain.ErrOffline
	}
	mov, err := l.repos.Movements.GetByID(id)
	if err != nil {
		return nil, err
	}
	if mov == nil {
		return nil, fmt.Errorf("movimiento %s: %w", id, domain.ErrNotFound)
	}

	unlock := l.locks.Lock(mov.ProductID)
	cancelled, err := l.cancelLocked(ctx, mov.ID, reason)
	unlock()
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("movement", cancelled.ID).Str("reason", cancelled.CancelReason).Msg("movimiento cancelado")
	l.queue.RefreshDepth()
	l.syncIfOnline(ctx)
	return cancelled, nil
}

func (l *Ledger) cancelLocked(ctx context.Context, id, reason string) (*entity.Movement, error) {
	mov, err := l.repos.Movements.GetByID(id)
	if err != nil {
		return nil, err
	}
	if mov == nil {
		return nil, fmt.Errorf("movimiento %s: %w", id, domain.ErrNotFound)
	}
	if mov.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}
	if mov.Status == entity.MovementPendingSync {
		return nil, domain.ErrPendingSync
	}
	p, err := l.repos.Products.GetByID(mov.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("producto %s: %w", mov.ProductID, domain.ErrNotFound)
	}
	reverse := mov.SignedQuantity().Neg()
	net := p.Quantity.Add(reverse)
	if net.IsNegative() {
		return nil, fmt.Errorf("cancelar %s dejaría %s en negativo: %w", mov.ShortID(), p.SKU, domain.ErrInsufficientStock)
	}

	now := l.now().UTC()
	cancelled := *mov
	cancelled.Status = entity.MovementCancelled
	cancelled.CancelReason = strings.TrimSpace(reason)
	if cancelled.CancelReason == "" {
		cancelled.CancelReason = "Cancelada"
	}
	cancelled.CancelledAt = &now

	body, err := encode(&cancelled)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, l.remoteTimeout)
	err = l.remote.Update(rctx, entity.CollectionMovements, mov.ID, body)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("cancelar en el remoto: %w", err)
	}

	err = l.txRunner.Run(ctx, func(r repository.Repositories) error {
		if err := r.Movements.UpdateStatus(&cancelled); err != nil {
			return err
		}
		p.Quantity = net
		p.UpdatedAt = now
		if err := r.Products.Update(p); err != nil {
			return err
		}
		_, err := l.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationUpdate,
			Collection: entity.CollectionMovements,
			EntityID:   mov.ID,
			Payload:    &cancelled,
			Adjustment: syncqueue.StockDelta(p.ID, reverse),
			Applied:    true,
			RemoteID:   mov.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

// QuickWithdrawalInput salida rápida por TAG.
type QuickWithdrawalInput struct {
	Tag            string
	CollaboratorID string
	HandledByID    string
	Quantity       decimal.Decimal
	Actor          string
	Notes          string
}

// QuickWithdrawal registra una salida para un colaborador localizando el producto por su TAG.
func (l *Ledger) QuickWithdrawal(ctx context.Context, in QuickWithdrawalInput) (*entity.Movement, error) {
	tag := entity.NormalizeTag(in.Tag)
	if tag == "" || in.CollaboratorID == "" {
		return nil, fmt.Errorf("TAG y colaborador requeridos: %w", domain.ErrInvalidInput)
	}
	p, err := l.repos.Products.GetByTag(tag)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("TAG %s: %w", tag, domain.ErrNotFound)
	}
	qty := in.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	return l.ApplyMovement(ctx, MovementInput{
		ProductID:      p.ID,
		Kind:           entity.MovementWithdrawal,
		Quantity:       qty,
		Actor:          in.Actor,
		CollaboratorID: in.CollaboratorID,
		HandledByID:    in.HandledByID,
		Tag:            tag,
		Notes:          in.Notes,
		Purpose:        "Saída rápida",
	})
}

// GetMovement obtiene un movimiento por id.
func (l *Ledger) GetMovement(id string) (*entity.Movement, error) {
	m, err := l.repos.Movements.GetByID(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("movimiento %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// ListMovements historial filtrado, más reciente primero. Incluye los cancelados.
func (l *Ledger) ListMovements(filter repository.MovementFilter) ([]*entity.Movement, error) {
	if filter.ProductID != "" {
		id, err := l.canonicalID(filter.ProductID)
		if err != nil {
			return nil, err
		}
		filter.ProductID = id
	}
	return l.repos.Movements.List(filter)
}

// AuditReport comparación entre la proyección del producto y el neto del ledger.
type AuditReport struct {
	ProductID  string          `json:"product_id"`
	Projected  decimal.Decimal `json:"projected"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Drift      decimal.Decimal `json:"drift"`
	Movements  int             `json:"movements"`
	Consistent bool            `json:"consistent"`
}

// Audit recalcula la cantidad del producto a partir de sus movimientos no cancelados.
func (l *Ledger) Audit(productID string) (*AuditReport, error) {
	id, err := l.canonicalID(productID)
	if err != nil {
		return nil, err
	}
	p, err := l.repos.Products.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("producto %s: %w", productID, domain.ErrNotFound)
	}
	movs, err := l.repos.Movements.ListByProduct(p.ID)
	if err != nil {
		return nil, err
	}
	net := inventory.Balance(movs)
	drift := p.Quantity.Sub(net)
	if !drift.IsZero() {
		l.log.Warn().Str("product", p.ID).Str("drift", drift.String()).Msg("proyección de stock inconsistente")
	}
	return &AuditReport{
		ProductID:  p.ID,
		Projected:  p.Quantity,
		Recomputed: net,
		Drift:      drift,
		Movements:  len(movs),
		Consistent: drift.IsZero(),
	}, nil
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codificar documento: %w", err)
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
