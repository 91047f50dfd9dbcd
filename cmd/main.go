package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	manager "go.miloapis.com/email-provider-oempro/cmd/manager"
	version "go.miloapis.com/email-provider-oempro/cmd/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "email-provider-oempro",
		Short: "Oempro is the email provider for Milo",
		Long:  "A Kubernetes controller that mirrors Milo contacts and contact groups into Oempro subscriber lists.",
	}

	rootCmd.AddCommand(manager.CreateManagerCommand())
	rootCmd.AddCommand(version.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
