// Command colourctl manages a colour anchor registry: seeding it from the
// BrickLink palette, relaxing it, matching and ingesting samples, serving
// it over HTTP and plotting it.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/config"
	"github.com/banshee-data/colour.registry/internal/monitoring"
	"github.com/banshee-data/colour.registry/internal/registrystore"
)

const appName = "colourctl"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	registryPath string
	configPath   string
	backupDir    string
}

func rootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Colour anchor registry tool",
		Long: `colourctl loads a registry of HSV colour anchors, keeps the anchors
apart with a relaxation pass, and matches observed samples against them,
nudging each anchor toward the samples it wins.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.registryPath, "registry", "r", "registry.json", "Registry JSON file")
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Calibration config file (JSON or YAML)")
	cmd.PersistentFlags().StringVar(&g.backupDir, "backup-dir", "", "Directory for dated registry backups (default: next to the registry)")

	cmd.AddCommand(
		calibrateCmd(g),
		matchCmd(g),
		ingestCmd(g),
		seedCmd(g),
		serveCmd(g),
		plotCmd(g),
		migrateCmd(),
		versionCmd(),
	)
	return cmd
}

func (g *globalOptions) loadConfig() (*config.CalibrationConfig, error) {
	if g.configPath == "" {
		return config.EmptyCalibrationConfig(), nil
	}
	cfg, err := config.LoadCalibrationConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (g *globalOptions) store() *registrystore.Store {
	return registrystore.NewStore(g.registryPath, g.backupDir)
}

// openRegistry loads the registry and, when relax is set, runs one
// calibration with the configured parameters.
func (g *globalOptions) openRegistry(cfg *config.CalibrationConfig, relax bool) (*registrystore.Store, *anchor.Registry, error) {
	store := g.store()
	reg, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	if relax {
		report := reg.Calibrate(cfg.CalibrateParams())
		logReport(report)
	}
	return store, reg, nil
}

func logReport(r anchor.CalibrationReport) {
	monitoring.Logf("calibration: passes=%d converged=%v moved=%d max_shift=%.4f violations=%d",
		r.Passes, r.Converged, r.Moved(), r.MaxShift, len(r.Violations))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
