package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bvankempen/rigging/pkg"
	"github.com/bvankempen/rigging/pkg/template"
)

var (
	renderHost      string
	renderExtraVars []string
	renderGather    bool
)

var renderCmd = &cobra.Command{
	Use:   "render [template]",
	Short: "Render a template string against a host's resolved variables",
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
		host, err := inv.GetHost(renderHost)
		if err != nil {
			return err
		}
		extraVars, err := parseExtraVars(renderExtraVars)
		if err != nil {
			return err
		}
		if renderGather {
			if _, err := facts.Gather(cmd.Context(), host, pkg.LocalCollector{}, nil); err != nil {
				return err
			}
		}

		resolver := pkg.NewResolver(inv, facts)
		context := resolver.Resolve(host, pkg.NewPlayContext(nil, extraVars))
		out, err := template.TemplateString(args[0], context)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderHost, "host", "localhost", "Host whose resolved variables to render against")
	renderCmd.Flags().StringSliceVarP(&renderExtraVars, "extra-vars", "e", []string{}, "Set additional variables as key=value (repeatable)")
	renderCmd.Flags().BoolVar(&renderGather, "gather", false, "Gather facts for the host before rendering")
	rootCmd.AddCommand(renderCmd)
}
