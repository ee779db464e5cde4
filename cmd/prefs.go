package main

import (
	"fmt"

	"formatconv/prefs"

	"github.com/spf13/cobra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read or write stored preferences (cookie-consent, theme)",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := prefs.ParseKey(args[0])
		if err != nil {
			return err
		}
		store, client, err := openPrefs(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintln(cmd.OutOrStdout(), prefs.Load(cmd.Context(), store, client, key))
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := prefs.ParseKey(args[0])
		if err != nil {
			return err
		}
		store, client, err := openPrefs(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		return prefs.Save(cmd.Context(), store, client, key, args[1])
	},
}

func openPrefs(cmd *cobra.Command) (prefs.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	client, _ := cmd.Flags().GetString("client")
	store, err := prefs.Open(cfg.Prefs.Driver, cfg.Prefs.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("opening preference store: %w", err)
	}
	return store, client, nil
}

func init() {
	prefsCmd.PersistentFlags().String("client", "local", "client the preference belongs to")
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}
