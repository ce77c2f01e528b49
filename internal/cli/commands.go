package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/JonMunkholm/geoatlas/internal/geosource"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			e.cfg.Database.AutoMigrate = false

			db, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			v, err := db.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s schema at version %d\n", db.Driver(), v)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var nameProp, codeProp string

	cmd := &cobra.Command{
		Use:   "seed [source]",
		Short: "Upsert provinces and geometry from GeoJSON (file or s3://bucket/key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			source := ""
			if len(args) == 1 {
				source = args[0]
			}

			fc, err := geosource.Load(cmd.Context(), e.cfg.Geometry, source)
			if err != nil {
				return err
			}

			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			opts := core.SeedOptions{NameProperty: e.cfg.Geometry.NameProperty, CodeProperty: e.cfg.Geometry.CodeProperty}
			if nameProp != "" {
				opts.NameProperty = nameProp
			}
			if codeProp != "" {
				opts.CodeProperty = codeProp
			}

			res, err := svc.SeedProvinces(cmd.Context(), e.principal(), fc, opts)
			if err != nil {
				return err
			}
			if e.opts.output == "json" {
				return renderJSON(e.out, res)
			}
			fmt.Fprintf(e.out, "provinces: %d created, %d updated, %d skipped\n", res.Created, res.Updated, len(res.Skipped))
			for _, s := range res.Skipped {
				fmt.Fprintf(e.out, "  skipped %s\n", s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nameProp, "name-property", "", "feature property holding the province name")
	cmd.Flags().StringVar(&codeProp, "code-property", "", "feature property holding the province code")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset> <file.csv|file.json>",
		Short: "Bulk reconcile a CSV or JSON file into a dataset",
		Long: `Bulk reconcile a file into a fact dataset or "connections".

CSV files need a header row. JSON files hold an array of row objects or
{"rows": [...]}. Rows that fail are reported and the rest are kept.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			dataset, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			var res *core.BulkImportResult
			switch strings.ToLower(filepath.Ext(path)) {
			case ".csv":
				res, err = svc.SubmitBulkCSV(cmd.Context(), e.principal(), dataset, bytes.NewReader(data))
			case ".json":
				var rows []core.Row
				if rows, err = decodeRows(data); err == nil {
					res, err = svc.SubmitBulk(cmd.Context(), e.principal(), dataset, rows)
				}
			default:
				return fmt.Errorf("unsupported file type %q (want .csv or .json)", filepath.Ext(path))
			}

			if res != nil {
				if e.opts.output == "json" {
					if rerr := renderJSON(e.out, res); rerr != nil {
						return rerr
					}
				} else {
					renderBulkResult(e.out, res)
				}
			}
			return err
		},
	}
}

func decodeRows(data []byte) ([]core.Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var body struct {
			Rows []core.Row `json:"rows"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return body.Rows, nil
	}
	var rows []core.Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return rows, nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show datasets and the years holding data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			datasets, err := svc.ListDatasets(cmd.Context())
			if err != nil {
				return err
			}
			if e.opts.output == "json" {
				return renderJSON(e.out, datasets)
			}
			renderDatasets(e.out, datasets)
			return nil
		},
	}
	cmd.AddCommand(newConnectionStatsCmd(), newMatrixCmd())
	return cmd
}

func newConnectionStatsCmd() *cobra.Command {
	var (
		top  int
		year int
	)
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Rank provinces by trade connection degree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			var yp *int
			if cmd.Flags().Changed("year") {
				yp = &year
			}
			ranked, err := svc.ConnectionStatistics(cmd.Context(), top, yp)
			if err != nil {
				return err
			}
			if e.opts.output == "json" {
				return renderJSON(e.out, ranked)
			}
			renderRanking(e.out, ranked)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of provinces to list")
	cmd.Flags().IntVar(&year, "year", 0, "restrict to one year")
	return cmd
}

func newMatrixCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print one year's province-to-province trade matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			m, err := svc.TradeMatrix(cmd.Context(), year)
			if err != nil {
				return err
			}
			if e.opts.output == "json" {
				return renderJSON(e.out, m)
			}
			renderMatrix(e.out, m)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to tabulate")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func newMapCmd() *cobra.Command {
	var (
		req   core.MapRequest
		month int
		with  []string
	)
	cmd := &cobra.Command{
		Use:   "map <dataset|combined|connections>",
		Short: "Compose a map and print the GeoJSON feature collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			req.Dataset = args[0]
			if cmd.Flags().Changed("month") {
				req.Month = &month
			}
			if len(with) > 0 {
				if req.Dataset == core.CombinedDataset {
					req.Combine = with
				} else {
					req.Combine = append([]string{req.Dataset}, with...)
					req.Dataset = core.CombinedDataset
				}
			}

			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			fc, err := svc.ComposeMap(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderJSON(e.out, fc)
		},
	}
	cmd.Flags().IntVar(&req.Year, "year", 0, "map year")
	cmd.Flags().IntVar(&month, "month", 0, "month (monthly datasets; omit to aggregate the year)")
	cmd.Flags().StringVar(&req.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&req.Condition, "condition", "", "condition filter")
	cmd.Flags().StringSliceVar(&with, "with", nil, "dataset(s) to combine with")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset <dataset>",
		Short: "Delete every record of a dataset (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			if !yes {
				return errors.New("reset deletes every record; pass --yes to confirm")
			}

			svc, closeAll, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			n, err := svc.ResetDataset(cmd.Context(), e.principal(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s: %d records deleted\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
