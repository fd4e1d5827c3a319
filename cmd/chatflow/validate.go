package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the flows of an app for consistency",
	Long:  `Crawls every flow from its root and reports dangling links and unreachable questions.`,
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		if err := ws.Validate(cmd.Context()); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Flows are valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
