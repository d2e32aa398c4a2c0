package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	inventoryList     bool
	inventoryHostName string
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Inspect the parsed inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}

		if inventoryHostName != "" {
			host, err := inv.GetHost(inventoryHostName)
			if err != nil {
				return err
			}
			return printJSON(host.Vars)
		}

		groups := make(map[string]interface{})
		for _, name := range inv.AllGroups() {
			hosts, err := inv.HostsInGroup(name)
			if err != nil {
				return err
			}
			groups[name] = map[string]interface{}{"hosts": hosts}
		}
		if inventoryList {
			return printJSON(groups)
		}
		for _, name := range inv.AllGroups() {
			hosts, err := inv.HostsInGroup(name)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d hosts)\n", name, len(hosts))
			for _, host := range hosts {
				fmt.Printf("  %s\n", host)
			}
		}
		return nil
	},
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	inventoryCmd.Flags().BoolVar(&inventoryList, "list", false, "Print the inventory as JSON")
	inventoryCmd.Flags().StringVar(&inventoryHostName, "host", "", "Print one host's variables as JSON")
	rootCmd.AddCommand(inventoryCmd)
}
