package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/google/uuid"
)

// ResetTimeout is the maximum duration for a reset operation.
var ResetTimeout = 30 * time.Second

// AdminRole is the role allowed to run destructive administrative operations.
const AdminRole = "admin"

// Service provides the core business logic for province indicator datasets.
type Service struct {
	store   Store
	cache   Cache
	cfg     *config.Config
	limiter *ImportLimiter
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the feature collection cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClock overrides the time source used for row timestamps and map metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service instance.
func NewService(store Store, cfg *config.Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Service{
		store:   store,
		cache:   noopCache{},
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.Bulk.MaxConcurrent, cfg.Bulk.MaxWaitTime),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// authorizeWrite checks that p may invoke write operations.
func (s *Service) authorizeWrite(p Principal) error {
	if strings.TrimSpace(p.Name) == "" {
		return &AuthError{Message: "missing principal"}
	}
	if !s.cfg.Security.CanWrite(p.Role) {
		return &AuthError{Principal: p, Message: "role may not write"}
	}
	return nil
}

// ImportLimiterStatus returns the current bulk limiter state.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until all running bulk imports complete or ctx is done.
// Used for graceful shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ping checks storage connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ListDatasets returns every fact dataset plus the connection graph, each with
// the years that hold data.
func (s *Service) ListDatasets(ctx context.Context) ([]DatasetSummary, error) {
	defs := All()
	out := make([]DatasetSummary, 0, len(defs)+1)
	for _, def := range defs {
		years, err := s.store.FactYears(ctx, def)
		if err != nil {
			return nil, Infra("list dataset years", err)
		}
		out = append(out, DatasetSummary{DatasetInfo: def.Info, Years: nonNilYears(years)})
	}

	years, err := s.store.ConnectionYears(ctx)
	if err != nil {
		return nil, Infra("list connection years", err)
	}
	out = append(out, DatasetSummary{
		DatasetInfo: DatasetInfo{
			Key:     ConnectionsDataset,
			Label:   "Trade Connections",
			Columns: []string{"source", "target", "year", "volume", "commodity"},
		},
		Years: nonNilYears(years),
	})
	return out, nil
}

// AvailableYears returns the distinct years holding data for a dataset, ascending.
func (s *Service) AvailableYears(ctx context.Context, dataset string) ([]int, error) {
	if dataset == ConnectionsDataset {
		years, err := s.store.ConnectionYears(ctx)
		return nonNilYears(years), Infra("list connection years", err)
	}
	def, err := lookupDataset(dataset)
	if err != nil {
		return nil, err
	}
	years, err := s.store.FactYears(ctx, def)
	return nonNilYears(years), Infra("list dataset years", err)
}

// ResolveProvince resolves an id, code or name to a province.
func (s *Service) ResolveProvince(ctx context.Context, ref string) (*Province, error) {
	return resolveProvince(ctx, s.store, ref)
}

// ListProvinces returns every registered province ordered by name.
func (s *Service) ListProvinces(ctx context.Context) ([]Province, error) {
	provinces, err := s.store.ListProvinces(ctx)
	if err != nil {
		return nil, Infra("list provinces", err)
	}
	return provinces, nil
}

// SeedOptions names the feature properties carrying province identity.
type SeedOptions struct {
	NameProperty string
	CodeProperty string
}

// SeedResult reports the outcome of seeding provinces.
type SeedResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped"`
}

// SeedProvinces upserts the provinces of a GeoJSON feature collection,
// keyed by normalized name. Geometry is stored inline on each province.
// Features without a name are skipped and reported.
func (s *Service) SeedProvinces(ctx context.Context, p Principal, fc *FeatureCollection, opts SeedOptions) (*SeedResult, error) {
	if err := s.authorizeWrite(p); err != nil {
		return nil, err
	}
	if fc == nil || len(fc.Features) == 0 {
		return nil, &ValidationError{Field: "features", Message: "required field is empty"}
	}
	if opts.NameProperty == "" {
		opts.NameProperty = "name"
	}
	if opts.CodeProperty == "" {
		opts.CodeProperty = "code"
	}

	result := &SeedResult{Skipped: []string{}}
	now := s.now()

	err := s.store.WithTx(ctx, func(tx Tx) error {
		for i, f := range fc.Features {
			name, _ := toText(f.Properties[opts.NameProperty])
			normalized := NormalizeName(name)
			if normalized == "" {
				result.Skipped = append(result.Skipped, fmt.Sprintf("feature %d: missing %q property", i+1, opts.NameProperty))
				continue
			}
			code, _ := toText(f.Properties[opts.CodeProperty])

			prov := &Province{
				ID:             uuid.NewString(),
				Name:           name,
				NormalizedName: normalized,
				Code:           code,
				Geometry:       f.Geometry,
				CreatedAt:      now,
			}
			created, err := tx.UpsertProvince(ctx, prov)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, Infra("seed provinces", err)
	}

	logging.WithFields(ctx, "created", result.Created, "updated", result.Updated, "skipped", len(result.Skipped)).
		Info("provinces seeded")

	for _, def := range All() {
		s.cache.Bump(ctx, def.Info.Key)
	}
	s.cache.Bump(ctx, ConnectionsDataset)
	return result, nil
}

// ResetDataset deletes every record of a dataset. Only AdminRole may reset.
func (s *Service) ResetDataset(ctx context.Context, p Principal, dataset string) (int64, error) {
	if err := s.authorizeWrite(p); err != nil {
		return 0, err
	}
	if p.Role != AdminRole {
		return 0, &AuthError{Principal: p, Message: "reset requires the admin role"}
	}

	table := "connections"
	if dataset != ConnectionsDataset {
		def, err := lookupDataset(dataset)
		if err != nil {
			return 0, err
		}
		table = def.Info.Table
	}

	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	var deleted int64
	err := s.store.WithTx(ctx, func(tx Tx) error {
		n, err := tx.Truncate(ctx, table)
		deleted = n
		return err
	})
	if err != nil {
		return 0, Infra("reset dataset", err)
	}

	s.cache.Bump(ctx, dataset)
	logging.WithFields(ctx, "dataset", dataset, "deleted", deleted).Warn("dataset reset")
	return deleted, nil
}

func nonNilYears(years []int) []int {
	if years == nil {
		return []int{}
	}
	sort.Ints(years)
	return years
}
