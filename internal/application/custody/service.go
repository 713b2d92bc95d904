// Package custody responde qué material tiene cada colaborador y cuándo debe devolverlo.
// La posesión se deriva siempre del ledger; este paquete solo guarda colaboradores y
// periodicidades.
package custody

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// DefaultWarningDays ventana "por vencer" antes del máximo de días.
const DefaultWarningDays = 3

// Queue cola de sincronización.
type Queue interface {
	EnqueueTx(r repository.Repositories, req syncqueue.Request) (*entity.PendingOperation, error)
	RefreshDepth()
}

// Connectivity estado de red y drenado inmediato.
type Connectivity interface {
	IsOnline() bool
	Sync(ctx context.Context) (syncqueue.Result, error)
}

// Options configuración del servicio.
type Options struct {
	WarningDays int
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Service colaboradores, periodicidades y posesión.
type Service struct {
	txRunner    ports.TxRunner
	repos       repository.Repositories
	queue       Queue
	conn        Connectivity
	warningDays int
	log         zerolog.Logger
	now         func() time.Time
}

// NewService construye el servicio.
func NewService(txRunner ports.TxRunner, repos repository.Repositories, queue Queue, conn Connectivity, opts Options) *Service {
	s := &Service{
		txRunner:    txRunner,
		repos:       repos,
		queue:       queue,
		conn:        conn,
		warningDays: opts.WarningDays,
		log:         opts.Logger,
		now:         opts.Now,
	}
	if s.warningDays <= 0 {
		s.warningDays = DefaultWarningDays
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterCollaborator da de alta un colaborador. Su id es la matrícula, así que no
// necesita id temporal: el remoto recibe el mismo id.
func (s *Service) RegisterCollaborator(ctx context.Context, c entity.Collaborator) (*entity.Collaborator, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" || c.Name == "" {
		return nil, fmt.Errorf("matrícula y nombre requeridos: %w", domain.ErrInvalidInput)
	}
	err := s.txRunner.Run(ctx, func(r repository.Repositories) error {
		if err := r.Collaborators.Create(&c); err != nil {
			return err
		}
		_, err := s.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationInsert,
			Collection: entity.CollectionCollaborators,
			EntityID:   c.ID,
			Payload:    &c,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("collaborator", c.ID).Msg("colaborador registrado")
	s.flush(ctx)
	return &c, nil
}

// UpdateCollaborator reemplaza los datos del colaborador.
func (s *Service) UpdateCollaborator(ctx context.Context, c entity.Collaborator) (*entity.Collaborator, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("nombre requerido: %w", domain.ErrInvalidInput)
	}
	err := s.txRunner.Run(ctx, func(r repository.Repositories) error {
		current, err := r.Collaborators.GetByID(c.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("colaborador %s: %w", c.ID, domain.ErrNotFound)
		}
		if err := r.Collaborators.Update(&c); err != nil {
			return err
		}
		_, err = s.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationUpdate,
			Collection: entity.CollectionCollaborators,
			EntityID:   c.ID,
			Payload:    &c,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return &c, nil
}

// GetCollaborator obtiene un colaborador por matrícula.
func (s *Service) GetCollaborator(id string) (*entity.Collaborator, error) {
	c, err := s.repos.Collaborators.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("colaborador %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// ListCollaborators todos los colaboradores.
func (s *Service) ListCollaborators() ([]*entity.Collaborator, error) {
	return s.repos.Collaborators.List()
}

// PeriodicityInput máximo de días para un par colaborador/producto.
type PeriodicityInput struct {
	CollaboratorID string
	ProductID      string
	MaxDays        int
	Active         bool
}

// UpsertPeriodicity crea o actualiza la periodicidad del par colaborador/producto.
func (s *Service) UpsertPeriodicity(ctx context.Context, in PeriodicityInput) (*entity.CollaboratorPeriodicity, error) {
	if in.MaxDays <= 0 {
		return nil, fmt.Errorf("máximo de días debe ser positivo: %w", domain.ErrInvalidInput)
	}
	if _, err := s.GetCollaborator(in.CollaboratorID); err != nil {
		return nil, err
	}
	product, err := s.repos.Products.GetByID(in.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("producto %s: %w", in.ProductID, domain.ErrNotFound)
	}

	var saved entity.CollaboratorPeriodicity
	err = s.txRunner.Run(ctx, func(r repository.Repositories) error {
		current, err := r.Periodicities.GetByPair(in.CollaboratorID, product.ID)
		if err != nil {
			return err
		}
		req := syncqueue.Request{Collection: entity.CollectionPeriodicities}
		if current != nil {
			saved = *current
			req.Kind = entity.OperationUpdate
		} else {
			saved = entity.CollaboratorPeriodicity{
				ID:             entity.NewTempID(),
				CollaboratorID: in.CollaboratorID,
				ProductID:      product.ID,
			}
			req.Kind = entity.OperationInsert
			req.LocalID = saved.ID
		}
		saved.MaxDays = in.MaxDays
		saved.Active = in.Active
		if err := r.Periodicities.Save(&saved); err != nil {
			return err
		}
		req.EntityID = saved.ID
		req.Payload = &saved
		_, err = s.queue.EnqueueTx(r, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	if p, err := s.repos.Periodicities.GetByPair(saved.CollaboratorID, saved.ProductID); err == nil && p != nil {
		return p, nil
	}
	return &saved, nil
}

// Periodicities periodicidades configuradas para el colaborador.
func (s *Service) Periodicities(collaboratorID string) ([]*entity.CollaboratorPeriodicity, error) {
	return s.repos.Periodicities.ListByCollaborator(collaboratorID)
}

// Possession material que el colaborador tiene hoy, derivado de sus movimientos.
func (s *Service) Possession(collaboratorID string) ([]inventory.PossessionItem, error) {
	if _, err := s.GetCollaborator(collaboratorID); err != nil {
		return nil, err
	}
	movs, err := s.repos.Movements.ListByCollaborator(collaboratorID)
	if err != nil {
		return nil, err
	}
	return inventory.Possession(movs, collaboratorID), nil
}

// DueItems obligaciones de devolución del colaborador a la fecha actual.
func (s *Service) DueItems(collaboratorID string) ([]inventory.DueItem, error) {
	items, err := s.Possession(collaboratorID)
	if err != nil {
		return nil, err
	}
	periods, err := s.repos.Periodicities.ListByCollaborator(collaboratorID)
	if err != nil {
		return nil, err
	}
	return inventory.DueItems(items, periods, s.now(), s.warningDays), nil
}

// Alert obligaciones de un colaborador que requieren atención.
type Alert struct {
	Collaborator *entity.Collaborator `json:"collaborator"`
	Items        []inventory.DueItem  `json:"items"`
}

// Alerts recorre todos los colaboradores. Sin filtro devuelve lo vencido y lo por vencer;
// con filtro, solo los ítems en ese estado.
func (s *Service) Alerts(state inventory.DueState) ([]Alert, error) {
	collaborators, err := s.repos.Collaborators.List()
	if err != nil {
		return nil, err
	}
	var out []Alert
	for _, c := range collaborators {
		items, err := s.DueItems(c.ID)
		if err != nil {
			return nil, err
		}
		var selected []inventory.DueItem
		for _, it := range items {
			if (state == "" && it.State != inventory.DueOnTime) || it.State == state {
				selected = append(selected, it)
			}
		}
		if len(selected) > 0 {
			out = append(out, Alert{Collaborator: c, Items: selected})
		}
	}
	return out, nil
}

func (s *Service) flush(ctx context.Context) {
	s.queue.RefreshDepth()
	if s.conn == nil || !s.conn.IsOnline() {
		return
	}
	if _, err := s.conn.Sync(ctx); err != nil {
		s.log.Warn().Err(err).Msg("sincronización inmediata falló, la operación queda en cola")
	}
}
