package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/colour.registry/internal/api"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/config"
	"github.com/banshee-data/colour.registry/internal/db"
	"github.com/banshee-data/colour.registry/internal/fsutil"
	"github.com/banshee-data/colour.registry/internal/matching"
	"github.com/banshee-data/colour.registry/internal/monitoring"
	"github.com/banshee-data/colour.registry/internal/palette"
	"github.com/banshee-data/colour.registry/internal/report"
	"github.com/banshee-data/colour.registry/internal/version"
)

func calibrateCmd(g *globalOptions) *cobra.Command {
	var (
		save   bool
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run one relaxation pass over the registry and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			store, reg, err := g.openRegistry(cfg, false)
			if err != nil {
				return err
			}

			rep := reg.Calibrate(cfg.CalibrateParams())
			logReport(rep)

			if dbPath != "" {
				samples, err := db.NewDB(dbPath)
				if err != nil {
					return err
				}
				defer samples.Close()
				if _, err := samples.RecordCalibration(rep); err != nil {
					return err
				}
			}
			if save {
				if _, err := store.Save(reg); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the relaxed registry back (with a dated backup)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Sample log database to record the run in")
	return cmd
}

func matchCmd(g *globalOptions) *cobra.Command {
	var (
		h, s, v float64
		hex     string
		source  string
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match one sample against the registry",
		Example: `  colourctl match --h 1.2 --s 253.5 --v 127.1
  colourctl match --hex C91A09`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			_, reg, err := g.openRegistry(cfg, cfg.GetCalibrateOnLoad())
			if err != nil {
				return err
			}

			sample := colour.Sample{H: h, S: s, V: v, Source: source}
			if hex != "" {
				pos, err := colour.FromHex(hex)
				if err != nil {
					return err
				}
				sample = colour.SampleAt(pos, source)
			}
			return writeJSON(cmd.OutOrStdout(), matching.Match(reg, sample))
		},
	}
	cmd.Flags().Float64Var(&h, "h", 0, "Hue (0-255)")
	cmd.Flags().Float64Var(&s, "s", 0, "Saturation (0-255)")
	cmd.Flags().Float64Var(&v, "v", 0, "Value (0-255)")
	cmd.Flags().StringVar(&hex, "hex", "", "Sample as an RGB hex string instead of --h/--s/--v")
	cmd.Flags().StringVar(&source, "source", "cli", "Source label")
	cmd.MarkFlagsMutuallyExclusive("hex", "h")
	return cmd
}

// ingestSummary is what `colourctl ingest` prints once the file is drained.
type ingestSummary struct {
	Samples int                     `json:"samples"`
	Applied int                     `json:"applied"`
	Reasons map[matching.Reason]int `json:"reasons"`
}

func ingestCmd(g *globalOptions) *cobra.Command {
	var (
		dbPath string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <samples.jsonl|->",
		Short: "Feed JSON-lines samples through the drift pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			store, reg, err := g.openRegistry(cfg, cfg.GetCalibrateOnLoad())
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			samples, err := readSampleLines(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			opts := cfg.MatcherOptions()
			if dbPath != "" {
				log, err := db.NewDB(dbPath)
				if err != nil {
					return err
				}
				defer log.Close()
				opts.Recorder = log
			}
			m := matching.NewMatcher(reg, opts)

			sum := ingestSummary{Samples: len(samples), Reasons: map[matching.Reason]int{}}
			for _, o := range m.IngestAll(samples) {
				if o.Applied {
					sum.Applied++
					continue
				}
				sum.Reasons[o.Reason]++
			}

			if save {
				if _, err := store.Save(reg); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Sample log database")
	cmd.Flags().BoolVar(&save, "save", false, "Write the drifted registry back (with a dated backup)")
	return cmd
}

// readSampleLines decodes one sample per line; blank lines are skipped.
func readSampleLines(r io.Reader) ([]colour.Sample, error) {
	var out []colour.Sample
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var s colour.Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

func seedCmd(g *globalOptions) *cobra.Command {
	var (
		palettePath string
		tablePath   string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Build a registry from a BrickLink palette file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			fsys := fsutil.OSFileSystem{}
			colours, err := palette.LoadBrickLink(fsys, palettePath)
			if err != nil {
				return err
			}
			reg, err := palette.Seed(colours, palette.SeedOptions{
				Tolerance:  cfg.GetDefaultTolerance(),
				MaxDrift:   cfg.GetDefaultMaxDrift(),
				PoleRadius: cfg.GetPoleRadius(),
			})
			if err != nil {
				return err
			}

			store := g.store()
			if _, err := store.Save(reg); err != nil {
				return err
			}
			monitoring.Logf("seeded %d anchors into %s", reg.Len(), store.Path)

			if tablePath != "" {
				table, err := palette.LoadTable(fsys, tablePath)
				if err != nil {
					return err
				}
				table.Merge(palette.TableFromBrickLink(colours))
				if err := table.Save(fsys, tablePath); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d anchors\n", reg.Len())
			return err
		},
	}
	cmd.Flags().StringVarP(&palettePath, "palette", "p", "", "BrickLink palette JSON (required)")
	cmd.Flags().StringVar(&tablePath, "table", "", "Colour metadata table to merge the palette into")
	_ = cmd.MarkFlagRequired("palette")
	return cmd
}

func serveCmd(g *globalOptions) *cobra.Command {
	var (
		listen string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			store, reg, err := g.openRegistry(cfg, cfg.GetCalibrateOnLoad())
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.GetListen()
			}

			mux := http.NewServeMux()
			opts := cfg.MatcherOptions()
			var samples *db.DB
			if dbPath != "" {
				samples, err = db.NewDB(dbPath)
				if err != nil {
					return err
				}
				defer samples.Close()
				opts.Recorder = samples
				samples.AttachAdminRoutes(mux)
			}

			apiServer := api.NewServer(matching.NewMatcher(reg, opts), store, samples, cfg.CalibrateParams())
			mux.Handle("/api/", apiServer.ServeMux())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, listen, api.LoggingMiddleware(mux))
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default from config, :8080)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Sample log database (enables /api/samples and /debug/)")
	return cmd
}

// serve runs an HTTP server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	monitoring.Logf("HTTP server stopped")
	return nil
}

func plotCmd(g *globalOptions) *cobra.Command {
	var (
		planeName string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Write a PNG of anchor and drift centres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, err := colour.ParsePlane(planeName)
			if err != nil {
				return err
			}
			_, reg, err := g.openRegistry(config.EmptyCalibrationConfig(), false)
			if err != nil {
				return err
			}
			if err := report.PlotAnchors(fsutil.OSFileSystem{}, reg, out, plane); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&planeName, "plane", "sv", "Projection plane: hs, hv or sv")
	cmd.Flags().StringVarP(&out, "out", "o", "anchors.png", "Output PNG path")
	return cmd
}

func migrateCmd() *cobra.Command {
	var dbPath string
	open := func() (*db.DB, error) {
		if dbPath == "" {
			return nil, errors.New("--db is required")
		}
		return db.OpenDB(dbPath)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sample log schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Sample log database")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return d.MigrateUp()
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return d.MigrateDown()
		},
	}
	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			v, dirty, err := d.MigrateVersion()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%v\n", v, dirty)
			return err
		},
	}
	cmd.AddCommand(up, down, ver)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version.String())
		},
	}
}
