package core

import (
	"context"
	"time"
)

// Reader is the read side of the storage layer.
// Lookups return (nil, nil) when nothing matches.
type Reader interface {
	GetProvince(ctx context.Context, id string) (*Province, error)
	FindProvinceByCode(ctx context.Context, code string) (*Province, error)
	FindProvinceByName(ctx context.Context, normalizedName string) (*Province, error)
	ListProvinces(ctx context.Context) ([]Province, error)

	ListFacts(ctx context.Context, def DatasetDefinition, q FactQuery) ([]FactRecord, error)
	FactYears(ctx context.Context, def DatasetDefinition) ([]int, error)

	ListConnections(ctx context.Context, q ConnectionQuery) ([]Connection, error)
	ConnectionYears(ctx context.Context) ([]int, error)

	// ConnectionDegrees aggregates out-degree, in-degree and distinct
	// neighbours per province in a single pass over the edge set.
	ConnectionDegrees(ctx context.Context, year *int) ([]DegreeRow, error)
}

// Tx is one atomic unit of work.
//
// Writes translate storage constraint violations into the error taxonomy:
// unique violations become *ConflictError, foreign key violations become
// *NotFoundError, check violations become *ValidationError. Anything else
// is an infrastructure failure.
type Tx interface {
	Reader

	FindFact(ctx context.Context, def DatasetDefinition, provinceID string, year int, month *int) (*FactRecord, error)
	InsertFact(ctx context.Context, def DatasetDefinition, rec *FactRecord) error
	UpdateFact(ctx context.Context, def DatasetDefinition, rec *FactRecord) error

	FindConnection(ctx context.Context, sourceID, targetID string, year int) (*Connection, error)
	InsertConnection(ctx context.Context, c *Connection) error
	UpdateConnection(ctx context.Context, c *Connection) error
	DeleteConnection(ctx context.Context, id string) (bool, error)

	// UpsertProvince inserts or updates a province keyed by normalized name.
	UpsertProvince(ctx context.Context, p *Province) (created bool, err error)

	// Truncate removes every row of a dataset table.
	Truncate(ctx context.Context, table string) (int64, error)

	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}

// Store is the storage layer used by the Service.
type Store interface {
	Reader

	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Cache stores composed feature collections.
// Implementations must treat every error as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Generation returns the current generation of a dataset.
	Generation(ctx context.Context, dataset string) int64

	// Bump advances a dataset's generation, invalidating cached maps built
	// from it.
	Bump(ctx context.Context, dataset string)
}

// noopCache never stores anything.
type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noopCache) Set(context.Context, string, []byte, time.Duration) {}
func (noopCache) Generation(context.Context, string) int64 { return 0 }
func (noopCache) Bump(context.Context, string) {}
