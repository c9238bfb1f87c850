package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhirsama/Goster-Ring/src/export"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var allDomains = []inter.Domain{
	inter.DomainActivity,
	inter.DomainHeartRate,
	inter.DomainStress,
	inter.DomainSpO2,
	inter.DomainSleep,
	inter.DomainHRV,
	inter.DomainTemperature,
}

// parseDomains 逗号分隔的数据域名，空串表示全部
func parseDomains(s string) ([]inter.Domain, error) {
	if strings.TrimSpace(s) == "" {
		return allDomains, nil
	}
	var out []inter.Domain
	for _, name := range strings.Split(s, ",") {
		d := inter.ParseDomain(strings.TrimSpace(name))
		if d == inter.DomainUnknown {
			return nil, fmt.Errorf("unknown domain %q", name)
		}
		out = append(out, d)
	}
	return out, nil
}

// parseDay 接受 RFC3339 或 2006-01-02（本地零点）
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func (a *app) exportCmd() *cobra.Command {
	var out, from, to, domains string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored samples to a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := parseDomains(domains)
			if err != nil {
				return err
			}
			end := time.Now()
			if to != "" {
				if end, err = parseDay(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			start := end.AddDate(0, 0, -7)
			if from != "" {
				if start, err = parseDay(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if out == "" {
				name := fmt.Sprintf("%s-%s.parquet", a.cfg.Device.ID, end.Format("20060102"))
				out = filepath.Join(a.cfg.Export.Dir, name)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := export.Collect(cmd.Context(), store, a.cfg.Device.ID, ds, start, end)
			if err != nil {
				return err
			}
			if err := export.WriteFile(out, rows); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.log.Info("export written", zap.String("path", out), zap.Int("rows", len(rows)))
			return printJSON(cmd, map[string]any{"path": out, "rows": len(rows)})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default <export.dir>/<device>-<date>.parquet)")
	cmd.Flags().StringVar(&from, "from", "", "Start time, RFC3339 or YYYY-MM-DD (default 7 days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "End time, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().StringVar(&domains, "domain", "", "Comma separated domains (default all)")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListRuns(cmd.Context(), a.cfg.Device.ID, limit)
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []inter.SyncRun{}
			}
			return printJSON(cmd, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs")
	return cmd
}
