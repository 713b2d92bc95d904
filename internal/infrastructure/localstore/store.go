package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Colecciones internas del almacén local.
const (
	collectionQueue = "sync_queue"
	collectionIDMap = "id_map"
	collectionMeta  = "meta"
)

// cachedCollections colecciones con documentos de negocio (candidatas a reescritura de ids).
var cachedCollections = []string{
	entity.CollectionProducts,
	entity.CollectionMovements,
	entity.CollectionCollaborators,
	entity.CollectionPeriodicities,
}

// Record documento JSON de una colección, indexado por clave.
// RowID conserva el orden de inserción aunque la clave cambie.
type Record struct {
	RowID      uint64    `gorm:"column:row_id;primaryKey;autoIncrement"`
	Collection string    `gorm:"column:collection;size:64;not null;uniqueIndex:idx_records_collection_key,priority:1"`
	Key        string    `gorm:"column:record_key;size:128;not null;uniqueIndex:idx_records_collection_key,priority:2"`
	Data       string    `gorm:"column:data;type:text;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName nombre de la tabla.
func (Record) TableName() string { return "records" }

// Config parámetros del almacén local.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store almacén durable local sobre SQLite. Cada Put es crash-consistente (WAL + synchronous=FULL).
type Store struct {
	db *gorm.DB
}

// Open abre (o crea) la base local y migra el esquema.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("local store: ruta vacía: %w", domain.ErrInvalidInput)
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("local store: crear directorio: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, busy.Milliseconds())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("local store: abrir %s: %w", cfg.Path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("local store: obtener conexión: %w", err)
	}
	// SQLite admite un solo escritor: todas las operaciones comparten una conexión.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("local store: migrar esquema: %w", err)
	}
	log.Info().Str("path", cfg.Path).Msg("almacén local abierto")
	return &Store{db: db}, nil
}

// Close cierra la base local.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAll devuelve todos los registros de la colección en orden de inserción.
func (s *Store) GetAll(collection string) ([]Record, error) {
	var recs []Record
	if err := s.db.Where("collection = ?", collection).Order("row_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("local store: get all %s: %w", collection, err)
	}
	return recs, nil
}

// Get devuelve el registro o (nil, nil) si no existe. Si la clave es un id temporal ya
// confirmado, resuelve a través de la tabla de ids.
func (s *Store) Get(collection, key string) (*Record, error) {
	rec, err := s.getExact(collection, key)
	if err != nil || rec != nil {
		return rec, err
	}
	if collection == collectionIDMap || collection == collectionQueue || collection == collectionMeta {
		return nil, nil
	}
	mapped, err := s.getExact(collectionIDMap, key)
	if err != nil || mapped == nil {
		return nil, err
	}
	var link idLink
	if err := json.Unmarshal([]byte(mapped.Data), &link); err != nil {
		return nil, fmt.Errorf("local store: id map %s: %w", key, err)
	}
	if link.RemoteID == "" {
		return nil, nil
	}
	return s.getExact(collection, link.RemoteID)
}

func (s *Store) getExact(collection, key string) (*Record, error) {
	var rec Record
	err := s.db.Where("collection = ? AND record_key = ?", collection, key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local store: get %s/%s: %w", collection, key, err)
	}
	return &rec, nil
}

// Put inserta o reemplaza el registro. Un registro existente conserva su posición.
func (s *Store) Put(collection, key string, data []byte) error {
	rec := Record{Collection: collection, Key: key, Data: string(data), UpdatedAt: time.Now().UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("local store: put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete elimina el registro; no falla si no existe.
func (s *Store) Delete(collection, key string) error {
	if err := s.db.Where("collection = ? AND record_key = ?", collection, key).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("local store: delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Clear vacía la colección.
func (s *Store) Clear(collection string) error {
	if err := s.db.Where("collection = ?", collection).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("local store: clear %s: %w", collection, err)
	}
	return nil
}

// Rekey mueve el registro from a la clave to, actualizando también su campo "id".
func (s *Store) Rekey(collection, from, to string) error {
	if from == to {
		return nil
	}
	// Un registro ya presente bajo la clave nueva (p. ej. traído por un refresh) se descarta.
	if err := s.db.Where("collection = ? AND record_key = ?", collection, to).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("local store: rekey %s/%s: %w", collection, to, err)
	}
	res := s.db.Model(&Record{}).
		Where("collection = ? AND record_key = ?", collection, from).
		Updates(map[string]any{
			"record_key": to,
			"data":       gorm.Expr("json_set(data, '$.id', ?)", to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("local store: rekey %s/%s -> %s: %w", collection, from, to, res.Error)
	}
	return nil
}

// ReplaceReferences reemplaza los valores de texto iguales a from por to en los documentos cacheados.
func (s *Store) ReplaceReferences(from, to string) error {
	if from == "" || from == to {
		return nil
	}
	needle, _ := json.Marshal(from)
	var recs []Record
	err := s.db.Where("collection IN ? AND instr(data, ?) > 0", cachedCollections, string(needle)).
		Order("row_id").Find(&recs).Error
	if err != nil {
		return fmt.Errorf("local store: buscar referencias a %s: %w", from, err)
	}
	for _, rec := range recs {
		var doc any
		if err := json.Unmarshal([]byte(rec.Data), &doc); err != nil {
			return fmt.Errorf("local store: decodificar %s/%s: %w", rec.Collection, rec.Key, err)
		}
		data, err := json.Marshal(replaceStrings(doc, from, to))
		if err != nil {
			return fmt.Errorf("local store: codificar %s/%s: %w", rec.Collection, rec.Key, err)
		}
		err = s.db.Model(&Record{}).Where("row_id = ?", rec.RowID).
			Updates(map[string]any{"data": string(data), "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return fmt.Errorf("local store: reescribir %s/%s: %w", rec.Collection, rec.Key, err)
		}
	}
	return nil
}

// ReplaceCollection vacía la colección y guarda los documentos recibidos bajo su "id".
func (s *Store) ReplaceCollection(collection string, docs []json.RawMessage) error {
	if err := s.Clear(collection); err != nil {
		return err
	}
	for _, doc := range docs {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(doc, &head); err != nil {
			return fmt.Errorf("local store: documento de %s: %w", collection, err)
		}
		if head.ID == "" {
			return fmt.Errorf("local store: documento de %s sin id", collection)
		}
		if err := s.Put(collection, head.ID, doc); err != nil {
			return err
		}
	}
	return nil
}

func replaceStrings(v any, from, to string) any {
	switch t := v.(type) {
	case string:
		if t == from {
			return to
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = replaceStrings(item, from, to)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = replaceStrings(item, from, to)
		}
		return t
	default:
		return v
	}
}

// Repositories devuelve los repositorios sin transacción (lecturas y escrituras sueltas).
func (s *Store) Repositories() repository.Repositories {
	return newRepositories(s)
}

func newRepositories(s *Store) repository.Repositories {
	return repository.Repositories{
		Products:      NewProductRepository(s),
		Movements:     NewMovementRepository(s),
		Collaborators: NewCollaboratorRepository(s),
		Periodicities: NewPeriodicityRepository(s),
		Operations:    NewPendingOperationRepository(s),
		IDs:           NewIDMapRepository(s),
		Cache:         s,
		Sequences:     NewSequenceRepository(s),
	}
}

var _ repository.CacheWriter = (*Store)(nil)

// ─── helpers de documentos ───────────────────────────────────────────────────

func getDoc[T any](s *Store, collection, key string) (*T, error) {
	rec, err := s.Get(collection, key)
	if err != nil || rec == nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(rec.Data), &v); err != nil {
		return nil, fmt.Errorf("local store: decodificar %s/%s: %w", collection, key, err)
	}
	return &v, nil
}

func putDoc(s *Store, collection, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("local store: codificar %s/%s: %w", collection, key, err)
	}
	return s.Put(collection, key, data)
}

func findDocs[T any](s *Store, collection string, query *gorm.DB) ([]*T, error) {
	if query == nil {
		query = s.db
	}
	var recs []Record
	if err := query.Where("collection = ?", collection).Order("row_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("local store: listar %s: %w", collection, err)
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal([]byte(rec.Data), &v); err != nil {
			return nil, fmt.Errorf("local store: decodificar %s/%s: %w", collection, rec.Key, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// field expresión json_extract sobre el documento.
func field(name string) string {
	return "json_extract(data, '$." + strings.ReplaceAll(name, "'", "") + "')"
}

func (s *Store) exists(collection, key string) (bool, error) {
	rec, err := s.getExact(collection, key)
	return rec != nil, err
}
