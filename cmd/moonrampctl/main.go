// Command moonrampctl is the operator CLI: schema migrations and
// merchant/token provisioning against a MoonRamp store (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{Use: "moonrampctl"}
	root.PersistentFlags().String("db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	root.AddCommand(migrateCmd())
	root.AddCommand(rollbackCmd())
	root.AddCommand(reapplyCmd())
	root.AddCommand(nukeCmd())
	root.AddCommand(listCmd())
	root.AddCommand(createMerchantCmd())
	root.AddCommand(createAPITokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
