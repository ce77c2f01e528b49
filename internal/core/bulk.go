package core

// bulk.go implements the bulk reconciliation engine.
//
// Per row: structural validation -> province resolution -> natural key ->
// lookup -> merge+update or create. Soft failures (validation, not found,
// conflict) are tallied in the result; anything else aborts the call and
// rolls back the current chunk.
//
// Each chunk is one transaction. Each row's write runs under its own
// savepoint so a constraint violation rolls back only that row.

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/JonMunkholm/geoatlas/internal/metrics"
	"github.com/google/uuid"
)

// pendingWrite is a validated, resolved row ready to be written.
type pendingWrite interface {
	apply(ctx context.Context, tx Tx, now time.Time) (created bool, err error)
}

// reconciler turns a raw row into a pendingWrite.
type reconciler interface {
	prepare(ctx context.Context, res *provinceResolver, row Row) (pendingWrite, error)
}

// rowTally accumulates the outcome of one chunk. It is merged into the
// call result only after the chunk commits.
type rowTally struct {
	created int
	updated int
	failed  int
	errors  []RowError
}

func (t *rowTally) fail(idx int, row Row, err error) {
	t.failed++
	t.errors = append(t.errors, RowError{
		Index: idx,
		Row:   row,
		Error: err.Error(),
		Code:  MapError(err).Code,
		Kind:  KindOf(err),
	})
}

// SubmitBulk reconciles rows into a dataset.
//
// Row-level failures are reported in the result and never returned as the
// error. The error is non-nil only when the call could not run or was cut
// short: authorization, unknown dataset, malformed batch, limiter timeout,
// storage failure or cancellation. A partial result accompanies the last
// two, covering every chunk that committed.
func (s *Service) SubmitBulk(ctx context.Context, p Principal, dataset string, rows []Row) (*BulkImportResult, error) {
	if err := s.authorizeWrite(p); err != nil {
		return nil, err
	}

	rec, err := s.reconcilerFor(dataset, p)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, &ValidationError{Field: "rows", Message: "empty batch"}
	}
	if limit := s.cfg.Bulk.MaxRows; limit > 0 && len(rows) > limit {
		return nil, &ValidationError{Field: "rows", Message: fmt.Sprintf("batch too large: %d rows (max %d)", len(rows), limit)}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()
	metrics.ImportStarted()
	defer metrics.ImportFinished()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Bulk.Timeout)
	defer cancel()

	return s.runBulk(ctx, dataset, rec, rows)
}

// reconcilerFor returns the reconciler for a dataset selector.
func (s *Service) reconcilerFor(dataset string, p Principal) (reconciler, error) {
	if dataset == ConnectionsDataset {
		return &connectionReconciler{principal: p}, nil
	}
	def, err := lookupDataset(dataset)
	if err != nil {
		return nil, err
	}
	return &factReconciler{def: def, principal: p}, nil
}

func (s *Service) runBulk(ctx context.Context, dataset string, rec reconciler, rows []Row) (*BulkImportResult, error) {
	start := time.Now()

	chunkSize := s.cfg.Bulk.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}

	result := &BulkImportResult{
		Dataset: dataset,
		Errors:  []RowError{},
		Chunks:  (len(rows) + chunkSize - 1) / chunkSize,
	}

	resolver := newProvinceResolver(s.store)

	finish := func(status string, err error) (*BulkImportResult, error) {
		result.Duration = time.Since(start)
		metrics.ObserveBulk(dataset, status, result.Created, result.Updated, result.Failed, result.Duration)
		log := logging.WithFields(ctx,
			"dataset", dataset,
			"created", result.Created,
			"updated", result.Updated,
			"failed", result.Failed,
			"chunks", result.CommittedChunks,
			"duration_ms", result.Duration.Milliseconds(),
		)
		if err != nil {
			log.Error("bulk import aborted", "error", err)
		} else {
			log.Info("bulk import complete")
		}
		return result, err
	}

	for offset := 0; offset < len(rows); offset += chunkSize {
		if err := ctx.Err(); err != nil {
			return finish("cancelled", cancelled(result, err))
		}

		end := min(offset+chunkSize, len(rows))
		chunkStart := time.Now()

		var tally *rowTally
		err := s.store.WithTx(ctx, func(tx Tx) error {
			resolver.r = tx
			var err error
			tally, err = s.runChunk(ctx, tx, rec, resolver, rows[offset:end], offset)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return finish("cancelled", cancelled(result, ctx.Err()))
			}
			return finish("error", Infra("bulk import", err))
		}

		result.TotalProcessed += end - offset
		result.Created += tally.created
		result.Updated += tally.updated
		result.Failed += tally.failed
		result.Errors = append(result.Errors, tally.errors...)
		result.CommittedChunks++
		s.cache.Bump(ctx, dataset)

		logging.WithFields(ctx,
			"dataset", dataset,
			"chunk", result.CommittedChunks,
			"rows", end-offset,
			"created", tally.created,
			"updated", tally.updated,
			"failed", tally.failed,
			"duration_ms", time.Since(chunkStart).Milliseconds(),
		).Debug("bulk chunk committed")
	}

	return finish("ok", nil)
}

func cancelled(result *BulkImportResult, err error) error {
	return fmt.Errorf("import cancelled after %d of %d chunks: %w", result.CommittedChunks, result.Chunks, err)
}

// runChunk reconciles one chunk inside tx. Soft row failures are tallied;
// the first hard failure is returned and rolls the chunk back.
func (s *Service) runChunk(ctx context.Context, tx Tx, rec reconciler, res *provinceResolver, rows []Row, offset int) (*rowTally, error) {
	tally := &rowTally{}
	now := s.now()

	for i, row := range rows {
		idx := offset + i + 1

		pw, err := rec.prepare(ctx, res, row)
		if err != nil {
			if isSoft(err) {
				tally.fail(idx, row, err)
				continue
			}
			return nil, err
		}

		sp := "row_" + strconv.Itoa(idx)
		if err := tx.Savepoint(ctx, sp); err != nil {
			return nil, Infra("savepoint", err)
		}

		created, err := pw.apply(ctx, tx, now)
		if err != nil {
			if !isSoft(err) {
				return nil, err
			}
			if rbErr := tx.RollbackTo(ctx, sp); rbErr != nil {
				return nil, Infra("rollback to savepoint", rbErr)
			}
			if relErr := tx.Release(ctx, sp); relErr != nil {
				return nil, Infra("release savepoint", relErr)
			}
			tally.fail(idx, row, err)
			continue
		}

		if err := tx.Release(ctx, sp); err != nil {
			return nil, Infra("release savepoint", err)
		}
		if created {
			tally.created++
		} else {
			tally.updated++
		}
	}

	return tally, nil
}

// factReconciler reconciles rows of a registered fact dataset.
type factReconciler struct {
	def       DatasetDefinition
	principal Principal
}

func (r *factReconciler) prepare(ctx context.Context, res *provinceResolver, row Row) (pendingWrite, error) {
	in, err := parseFactRow(r.def, row)
	if err != nil {
		return nil, err
	}
	prov, err := res.resolve(ctx, in.ProvinceRef)
	if err != nil {
		return nil, err
	}
	return &factWrite{def: r.def, principal: r.principal, in: in, province: prov}, nil
}

type factWrite struct {
	def       DatasetDefinition
	principal Principal
	in        *factInput
	province  *Province
}

func (w *factWrite) apply(ctx context.Context, tx Tx, now time.Time) (bool, error) {
	existing, err := tx.FindFact(ctx, w.def, w.province.ID, w.in.Year, w.in.Month)
	if err != nil {
		return false, Infra("find fact", err)
	}

	if existing != nil {
		merged := make(Values, len(existing.Values)+len(w.in.Values))
		maps.Copy(merged, existing.Values)
		maps.Copy(merged, w.in.Values)

		existing.Values = merged
		existing.ProvinceName = w.province.Name
		existing.Class = w.def.Classify(merged)
		existing.UpdatedBy = w.principal.Name
		existing.UpdatedAt = &now
		return false, Infra("update fact", tx.UpdateFact(ctx, w.def, existing))
	}

	rec := w.record(now)
	return true, Infra("insert fact", tx.InsertFact(ctx, w.def, rec))
}

func (w *factWrite) record(now time.Time) *FactRecord {
	return &FactRecord{
		ID:           uuid.NewString(),
		ProvinceID:   w.province.ID,
		ProvinceName: w.province.Name,
		Year:         w.in.Year,
		Month:        w.in.Month,
		Values:       w.in.Values,
		Class:        w.def.Classify(w.in.Values),
		CreatedBy:    w.principal.Name,
		CreatedRole:  w.principal.Role,
		CreatedAt:    now,
	}
}

// connectionReconciler reconciles trade connection rows.
type connectionReconciler struct {
	principal Principal
}

func (r *connectionReconciler) prepare(ctx context.Context, res *provinceResolver, row Row) (pendingWrite, error) {
	in, err := parseConnectionRow(row)
	if err != nil {
		return nil, err
	}
	src, err := res.resolve(ctx, in.SourceRef)
	if err != nil {
		return nil, err
	}
	tgt, err := res.resolve(ctx, in.TargetRef)
	if err != nil {
		return nil, err
	}
	if src.ID == tgt.ID {
		return nil, errSelfConnection()
	}
	return &connectionWrite{principal: r.principal, in: in, source: src, target: tgt}, nil
}

type connectionWrite struct {
	principal Principal
	in        *connectionInput
	source    *Province
	target    *Province
}

func (w *connectionWrite) apply(ctx context.Context, tx Tx, now time.Time) (bool, error) {
	existing, err := tx.FindConnection(ctx, w.source.ID, w.target.ID, w.in.Year)
	if err != nil {
		return false, Infra("find connection", err)
	}

	if existing != nil {
		existing.SourceName = w.source.Name
		existing.TargetName = w.target.Name
		if w.in.Volume != nil {
			existing.Volume = w.in.Volume
		}
		if w.in.Commodity != "" {
			existing.Commodity = w.in.Commodity
		}
		existing.UpdatedBy = w.principal.Name
		existing.UpdatedAt = &now
		return false, Infra("update connection", tx.UpdateConnection(ctx, existing))
	}

	c := &Connection{
		ID:          uuid.NewString(),
		SourceID:    w.source.ID,
		SourceName:  w.source.Name,
		TargetID:    w.target.ID,
		TargetName:  w.target.Name,
		Year:        w.in.Year,
		Volume:      w.in.Volume,
		Commodity:   w.in.Commodity,
		CreatedBy:   w.principal.Name,
		CreatedRole: w.principal.Role,
		CreatedAt:   now,
	}
	return true, Infra("insert connection", tx.InsertConnection(ctx, c))
}

// CreateFact creates one fact record in its own transaction.
// Unlike SubmitBulk, every failure is returned directly; an existing
// natural key yields a ConflictError.
func (s *Service) CreateFact(ctx context.Context, p Principal, dataset string, row Row) (*FactRecord, error) {
	if err := s.authorizeWrite(p); err != nil {
		return nil, err
	}
	def, err := lookupDataset(dataset)
	if err != nil {
		return nil, err
	}
	in, err := parseFactRow(def, row)
	if err != nil {
		return nil, err
	}

	var rec *FactRecord
	err = s.store.WithTx(ctx, func(tx Tx) error {
		prov, err := resolveProvince(ctx, tx, in.ProvinceRef)
		if err != nil {
			return err
		}
		existing, err := tx.FindFact(ctx, def, prov.ID, in.Year, in.Month)
		if err != nil {
			return Infra("find fact", err)
		}
		if existing != nil {
			return &ConflictError{Entity: def.Info.Key, Key: factKey(prov.Name, in.Year, in.Month)}
		}

		w := &factWrite{def: def, principal: p, in: in, province: prov}
		rec = w.record(s.now())
		return Infra("insert fact", tx.InsertFact(ctx, def, rec))
	})
	if err != nil {
		return nil, err
	}

	s.cache.Bump(ctx, dataset)
	return rec, nil
}

// UpsertConnection creates or updates one connection in its own transaction.
func (s *Service) UpsertConnection(ctx context.Context, p Principal, row Row) (*Connection, bool, error) {
	if err := s.authorizeWrite(p); err != nil {
		return nil, false, err
	}

	rec := &connectionReconciler{principal: p}
	var (
		conn    *Connection
		created bool
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		pw, err := rec.prepare(ctx, newProvinceResolver(tx), row)
		if err != nil {
			return err
		}
		w := pw.(*connectionWrite)
		if created, err = w.apply(ctx, tx, s.now()); err != nil {
			return err
		}
		conn, err = tx.FindConnection(ctx, w.source.ID, w.target.ID, w.in.Year)
		return Infra("find connection", err)
	})
	if err != nil {
		return nil, false, err
	}

	s.cache.Bump(ctx, ConnectionsDataset)
	return conn, created, nil
}

// DeleteConnection removes a connection by id.
func (s *Service) DeleteConnection(ctx context.Context, p Principal, id string) error {
	if err := s.authorizeWrite(p); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return &NotFoundError{Entity: "connection", Ref: id}
	}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.DeleteConnection(ctx, id)
		if err != nil {
			return Infra("delete connection", err)
		}
		if !ok {
			return &NotFoundError{Entity: "connection", Ref: id}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Bump(ctx, ConnectionsDataset)
	return nil
}

func factKey(province string, year int, month *int) string {
	if month != nil {
		return fmt.Sprintf("%s/%d-%02d", province, year, *month)
	}
	return fmt.Sprintf("%s/%d", province, year)
}

// IsCancelled reports whether err ended a bulk call early.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
