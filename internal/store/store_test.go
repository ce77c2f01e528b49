package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
	_ "github.com/JonMunkholm/geoatlas/internal/core/datasets"
	"github.com/JonMunkholm/geoatlas/internal/store"
	"github.com/JonMunkholm/geoatlas/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seedProvince(t *testing.T, s *store.Store, name, code string) core.Province {
	t.Helper()
	p := core.Province{
		ID:             uuid.NewString(),
		Name:           name,
		NormalizedName: core.NormalizeName(name),
		Code:           code,
		Geometry:       []byte(`{"type":"Point","coordinates":[0,0]}`),
		CreatedAt:      now,
	}
	err := s.WithTx(context.Background(), func(tx core.Tx) error {
		created, err := tx.UpsertProvince(context.Background(), &p)
		require.True(t, created)
		return err
	})
	require.NoError(t, err)
	return p
}

func edge(src, dst core.Province, year int) *core.Connection {
	return &core.Connection{
		ID:          uuid.NewString(),
		SourceID:    src.ID,
		SourceName:  src.Name,
		TargetID:    dst.ID,
		TargetName:  dst.Name,
		Year:        year,
		CreatedBy:   "dewi",
		CreatedRole: "admin",
		CreatedAt:   now,
	}
}

func TestMigrate(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	v, err := s.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	// already applied
	require.NoError(t, s.Migrate(ctx))
	assert.Equal(t, store.DriverSQLite, s.Driver())
	assert.NoError(t, s.Ping(ctx))
}

func TestProvinces(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	aceh := seedProvince(t, s, "Aceh", "ID-AC")

	got, err := s.FindProvinceByCode(ctx, "id-ac")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, aceh.ID, got.ID)
	assert.JSONEq(t, `{"type":"Point","coordinates":[0,0]}`, string(got.Geometry))

	missing, err := s.GetProvince(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)

	t.Run("upsert by normalized name keeps geometry and code", func(t *testing.T) {
		p := core.Province{
			ID:             uuid.NewString(),
			Name:           "Provinsi Aceh",
			NormalizedName: core.NormalizeName("Provinsi Aceh"),
			CreatedAt:      now.Add(time.Hour),
		}
		err := s.WithTx(ctx, func(tx core.Tx) error {
			created, err := tx.UpsertProvince(ctx, &p)
			assert.False(t, created)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, aceh.ID, p.ID)

		got, err := s.FindProvinceByName(ctx, "aceh")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Provinsi Aceh", got.Name)
		assert.Equal(t, "ID-AC", got.Code)
		assert.True(t, got.HasGeometry())
		assert.NotNil(t, got.UpdatedAt)
	})
}

func TestFacts(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	aceh := seedProvince(t, s, "Aceh", "ID-AC")

	def, ok := core.Get("supply-chain")
	require.True(t, ok)

	month := 3
	rec := &core.FactRecord{
		ID:           uuid.NewString(),
		ProvinceID:   aceh.ID,
		ProvinceName: aceh.Name,
		Year:         2024,
		Month:        &month,
		Values:       core.Values{"production_tons": 120.0, "consumption_tons": 100.0, "distribution_channel": "modern"},
		Class:        core.ConditionSurplus,
		CreatedBy:    "dewi",
		CreatedRole:  "admin",
		CreatedAt:    now,
	}

	require.NoError(t, s.WithTx(ctx, func(tx core.Tx) error {
		return tx.InsertFact(ctx, def, rec)
	}))

	t.Run("natural key lookup", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx core.Tx) error {
			got, err := tx.FindFact(ctx, def, aceh.ID, 2024, &month)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, 120.0, got.Values["production_tons"])
			assert.Equal(t, "modern", got.Values["distribution_channel"])
			assert.NotContains(t, got.Values, "stock_tons")

			other := 4
			none, err := tx.FindFact(ctx, def, aceh.ID, 2024, &other)
			assert.Nil(t, none)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("duplicate natural key is a conflict", func(t *testing.T) {
		dup := *rec
		dup.ID = uuid.NewString()
		err := s.WithTx(ctx, func(tx core.Tx) error {
			return tx.InsertFact(ctx, def, &dup)
		})
		assert.Equal(t, core.KindConflict, core.KindOf(err))
	})

	t.Run("unknown province is not found", func(t *testing.T) {
		orphan := *rec
		orphan.ID = uuid.NewString()
		orphan.ProvinceID = uuid.NewString()
		err := s.WithTx(ctx, func(tx core.Tx) error {
			return tx.InsertFact(ctx, def, &orphan)
		})
		assert.Equal(t, core.KindNotFound, core.KindOf(err))
	})

	t.Run("check constraint is a validation error", func(t *testing.T) {
		bad := *rec
		bad.ID = uuid.NewString()
		bad.Year = 2023
		bad.Values = core.Values{"production_tons": -5.0, "consumption_tons": 1.0}
		err := s.WithTx(ctx, func(tx core.Tx) error {
			return tx.InsertFact(ctx, def, &bad)
		})
		assert.Equal(t, core.KindValidation, core.KindOf(err))
	})

	t.Run("update rewrites variables", func(t *testing.T) {
		updated := now.Add(time.Hour)
		rec.Values = core.Values{"production_tons": 80.0, "consumption_tons": 100.0}
		rec.Class = core.ConditionDeficit
		rec.UpdatedBy = "rudi"
		rec.UpdatedAt = &updated
		require.NoError(t, s.WithTx(ctx, func(tx core.Tx) error {
			return tx.UpdateFact(ctx, def, rec)
		}))

		facts, err := s.ListFacts(ctx, def, core.FactQuery{Month: &month})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, core.ConditionDeficit, facts[0].Class)
		assert.Equal(t, "rudi", facts[0].UpdatedBy)
		assert.NotContains(t, facts[0].Values, "distribution_channel")
	})

	years, err := s.FactYears(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, []int{2024}, years)
}

func TestSavepointRollsBackOneRow(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	aceh := seedProvince(t, s, "Aceh", "ID-AC")
	bali := seedProvince(t, s, "Bali", "ID-BA")

	err := s.WithTx(ctx, func(tx core.Tx) error {
		require.NoError(t, tx.Savepoint(ctx, "row_1"))
		require.NoError(t, tx.InsertConnection(ctx, edge(aceh, bali, 2024)))
		require.NoError(t, tx.Release(ctx, "row_1"))

		require.NoError(t, tx.Savepoint(ctx, "row_2"))
		err := tx.InsertConnection(ctx, edge(aceh, aceh, 2024))
		assert.Equal(t, "self-connection", err.Error())
		require.NoError(t, tx.RollbackTo(ctx, "row_2"))
		return tx.Release(ctx, "row_2")
	})
	require.NoError(t, err)

	conns, err := s.ListConnections(ctx, core.ConnectionQuery{})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "Bali", conns[0].TargetName)
}

func TestConnections(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	aceh := seedProvince(t, s, "Aceh", "ID-AC")
	bali := seedProvince(t, s, "Bali", "ID-BA")
	papua := seedProvince(t, s, "Papua", "ID-PA")

	vol := 12.5
	ab := edge(aceh, bali, 2023)
	ab.Volume = &vol
	require.NoError(t, s.WithTx(ctx, func(tx core.Tx) error {
		for _, c := range []*core.Connection{ab, edge(bali, aceh, 2023), edge(aceh, papua, 2024)} {
			if err := tx.InsertConnection(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}))

	t.Run("directional listing", func(t *testing.T) {
		out, err := s.ListConnections(ctx, core.ConnectionQuery{ProvinceID: aceh.ID, Direction: core.DirectionOut})
		require.NoError(t, err)
		assert.Len(t, out, 2)

		y := 2023
		in, err := s.ListConnections(ctx, core.ConnectionQuery{ProvinceID: aceh.ID, Direction: core.DirectionIn, Year: &y})
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, "Bali", in[0].SourceName)
	})

	t.Run("degrees", func(t *testing.T) {
		degrees, err := s.ConnectionDegrees(ctx, nil)
		require.NoError(t, err)
		require.Len(t, degrees, 3)
		assert.Equal(t, core.DegreeRow{ProvinceID: aceh.ID, ProvinceName: "Aceh", OutDegree: 2, InDegree: 1, NeighborCount: 2}, degrees[0])

		y := 2024
		degrees, err = s.ConnectionDegrees(ctx, &y)
		require.NoError(t, err)
		assert.Len(t, degrees, 2)
	})

	t.Run("natural key and update", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx core.Tx) error {
			got, err := tx.FindConnection(ctx, aceh.ID, bali.ID, 2023)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.NotNil(t, got.Volume)
			assert.Equal(t, 12.5, *got.Volume)

			got.Volume = nil
			got.Commodity = "rice"
			got.UpdatedBy = "rudi"
			return tx.UpdateConnection(ctx, got)
		})
		require.NoError(t, err)

		out, err := s.ListConnections(ctx, core.ConnectionQuery{ProvinceID: bali.ID, Direction: core.DirectionIn})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Nil(t, out[0].Volume)
		assert.Equal(t, "rice", out[0].Commodity)
	})

	t.Run("duplicate edge is a conflict", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx core.Tx) error {
			return tx.InsertConnection(ctx, edge(aceh, bali, 2023))
		})
		assert.Equal(t, core.KindConflict, core.KindOf(err))
	})

	t.Run("delete and truncate", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx core.Tx) error {
			ok, err := tx.DeleteConnection(ctx, ab.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = tx.DeleteConnection(ctx, ab.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = tx.Truncate(ctx, "provinces")
			assert.Error(t, err, "only dataset tables can be truncated")

			n, err := tx.Truncate(ctx, "connections")
			assert.Equal(t, int64(2), n)
			return err
		})
		require.NoError(t, err)

		years, err := s.ConnectionYears(ctx)
		require.NoError(t, err)
		assert.Empty(t, years)
	})
}
