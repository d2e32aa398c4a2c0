package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bvankempen/rigging/pkg"
	"github.com/bvankempen/rigging/pkg/common"
	"github.com/bvankempen/rigging/pkg/config"
	"github.com/bvankempen/rigging/pkg/database"
)

var (
	cfgFile       string
	inventoryFile string
	cfg           *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "rigging",
	Short:        "Resolve variables and render playbooks against an inventory",
	Long:         `Rigging resolves layered variables over an inventory and renders playbook templates against each host.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := common.SetLogFormat(cfg.Logging.Format, cfg.Logging.Timestamps); err != nil {
			return err
		}
		common.SetLogLevel(cfg.Logging.Level)
		if cfg.Logging.File != "" {
			if err := common.SetLogFile(cfg.Logging.File); err != nil {
				return err
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file path (default: ./rigging.yaml)")
	rootCmd.PersistentFlags().StringVarP(&inventoryFile, "inventory", "i", "", "Inventory file path (default: implicit localhost)")
}

// loadInventory loads the inventory flag target, or builds the implicit
// localhost-only inventory when no file was given.
func loadInventory() (*pkg.Inventory, error) {
	if inventoryFile == "" {
		inv := pkg.NewInventory()
		inv.AddHost(&pkg.Host{Name: "localhost", IsLocal: true})
		if err := inv.Finalize(); err != nil {
			return nil, err
		}
		return inv, nil
	}
	return pkg.LoadInventory(inventoryFile)
}

// newFactStore builds the fact store, attaching the persistent cache when
// one is configured.
func newFactStore() (*pkg.FactStore, error) {
	store := pkg.NewFactStore()
	if cfg.Facts.CachePath != "" {
		cache, err := database.NewFactCache(cfg.Facts.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open fact cache: %w", err)
		}
		store.WithCache(cache, cfg.Facts.CacheTTL)
	}
	return store, nil
}

// parseExtraVars turns repeated key=value flags into a variable mapping.
// Values are parsed as YAML scalars so numbers and booleans keep their type.
func parseExtraVars(pairs []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{})
	for _, raw := range pairs {
		key, value, found := strings.Cut(raw, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid extra var %q, expected key=value", raw)
		}
		var parsed interface{}
		if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		vars[key] = parsed
	}
	return vars, nil
}
