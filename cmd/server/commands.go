package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/db"
	"github.com/rpattn/resourcekit/internal/registry"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := db.MigrationSteps()
		if err != nil {
			return err
		}
		logger.Info("applying migrations", zap.Strings("files", steps))
		return db.RunMigrations(cfg.Database, logger)
	},
}

var lookupKeysCmd = &cobra.Command{
	Use:   "lookup-keys",
	Short: "Print the registered resource types",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Default(cfg.API.BaseURL)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tENDPOINT\tFAMILY\tFIELDS")
		for _, key := range reg.LookupKeys() {
			def, _ := reg.Lookup(key)
			family := "-"
			if def.Family != nil {
				family = string(def.Family.FamilyKey)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, def.Endpoint, family, strings.Join(reg.FieldNames(key), ","))
		}
		autocomplete := reg.AutocompleteKeys()
		sort.Strings(autocomplete)
		fmt.Fprintf(w, "\nautocomplete:\t%s\n", strings.Join(autocomplete, ","))
		return w.Flush()
	},
}
