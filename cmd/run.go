package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bvankempen/rigging/pkg"
	"github.com/bvankempen/rigging/pkg/common"
)

var (
	runExtraVars []string
	runForks     int
)

var runCmd = &cobra.Command{
	Use:   "run [playbook]",
	Short: "Run a playbook",
	Long:  `Run a playbook against the inventory. Tasks are resolved and rendered per host; the default dispatcher logs rendered parameters without side effects.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playbook, err := pkg.LoadPlaybook(args[0])
		if err != nil {
			return err
		}
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		facts, err := newFactStore()
		if err != nil {
			return err
		}
		extraVars, err := parseExtraVars(runExtraVars)
		if err != nil {
			return err
		}
		if runForks > 0 {
			cfg.Executor.Forks = runForks
		}

		runner := pkg.NewRunner(inv, facts, pkg.DryRunDispatcher{}, pkg.LocalCollector{}, cfg)
		common.SetRunID(runner.RunID())

		recap, err := runner.Run(cmd.Context(), playbook, extraVars)
		if err != nil {
			return err
		}
		if failed := recap.FailedHosts(); len(failed) > 0 {
			return fmt.Errorf("run failed on hosts: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&runExtraVars, "extra-vars", "e", []string{}, "Set additional variables as key=value (repeatable)")
	runCmd.Flags().IntVar(&runForks, "forks", 0, "Maximum hosts evaluated in parallel (overrides config)")
	rootCmd.AddCommand(runCmd)
}
