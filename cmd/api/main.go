package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/planty/core/cmd/api/commands"
)

// @title Planty API
// @version 1.0
// @description Personal planner: nested sections of ordered tasks with due dates, recurrence and encrypted attachments

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "planty",
		Short: "Planty API Server",
		Long:  `Planty keeps a tree of sections holding ordered tasks, with recurring due dates, a calendar view and encrypted attachments.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
