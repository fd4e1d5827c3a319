package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chatflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chatflow version %s\n", strings.TrimSpace(chatflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
