package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "botdeck",
	Short: "Botdeck — support bot dashboard backend",
	Long:  "Botdeck is the backend for a dashboard that sells and manages AI support bots: password and Google sign-in, role-based invitations, and checkout-to-bot provisioning.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/botdeck.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
