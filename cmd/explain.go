package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bvankempen/rigging/pkg"
)

var (
	explainHost      string
	explainExtraVars []string
)

var explainCmd = &cobra.Command{
	Use:   "explain [variable]",
	Short: "Show which precedence tier supplies a variable for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		facts, err := newFactStore()
		if err != nil {
			return err
		}
		host, err := inv.GetHost(explainHost)
		if err != nil {
			return err
		}
		extraVars, err := parseExtraVars(explainExtraVars)
		if err != nil {
			return err
		}

		resolver := pkg.NewResolver(inv, facts)
		binding, err := resolver.Explain(host, pkg.NewPlayContext(nil, extraVars), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %v (tier %d %s, source %s)\n",
			binding.Key, binding.Value, binding.Tier, binding.Tier, binding.Source)
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainHost, "host", "localhost", "Host to resolve against")
	explainCmd.Flags().StringSliceVarP(&explainExtraVars, "extra-vars", "e", []string{}, "Set additional variables as key=value (repeatable)")
	rootCmd.AddCommand(explainCmd)
}
