package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List the flows of an app",
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		groups := ws.Flows.Groups()
		if len(groups) == 0 {
			fmt.Println("No flows found.")
			return
		}
		for _, gf := range groups {
			status := "active"
			if !gf.Group.IsActive {
				status = "hidden"
			}
			fmt.Printf("%s  %-40s  %s\n", gf.Group.ID, gf.Group.Title, status)
			order := ws.Flows.DisplayOrder(gf.Group.ID)
			for _, q := range gf.Questions {
				pos := "-"
				if n, ok := order[q.ID]; ok {
					pos = fmt.Sprint(n)
				}
				fmt.Printf("    %2s. %s\n", pos, q.Title)
			}
		}
	},
}

var flowsRmCmd = &cobra.Command{
	Use:   "rm <group-id>...",
	Short: "Delete one or more flows",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)
		hasError := false

		for _, groupID := range args {
			if err := ws.Flows.DeleteFlow(cmd.Context(), groupID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", groupID, err)
				hasError = true
			} else {
				fmt.Printf("Removed flow '%s'\n", groupID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.AddCommand(flowsRmCmd)
}
