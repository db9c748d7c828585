package main

import (
	"fmt"
	"os"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

// runCommand handles the maintenance subcommands and returns the exit code.
func runCommand(args []string) int {
	switch args[0] {
	case "create-operator":
		if len(args) != 3 {
			fmt.Println("Usage: ticketfox create-operator <name> <email>")
			return 2
		}
		env.SetupEnvFile()
		database.SetupDatabase()

		op, rawKey, err := models.CreateOperator(database.GetDB(), args[1], args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "create operator: %v\n", err)
			return 1
		}
		fmt.Printf("Operator %d (%s) created.\n", op.ID, op.Email)
		fmt.Printf("API key (shown once): %s\n", rawKey)
		return 0

	case "rotate-api-key":
		if len(args) != 2 {
			fmt.Println("Usage: ticketfox rotate-api-key <email>")
			return 2
		}
		env.SetupEnvFile()
		database.SetupDatabase()

		rawKey, err := models.RotateOperatorAPIKey(database.GetDB(), args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "rotate api key: %v\n", err)
			return 1
		}
		fmt.Printf("New API key (shown once): %s\n", rawKey)
		return 0
	}

	fmt.Println("Usage: ticketfox [create-operator <name> <email> | rotate-api-key <email>]")
	return 2
}
