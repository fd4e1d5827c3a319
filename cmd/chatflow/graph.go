package main

import (
	"fmt"
	"os"

	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [group-id]",
	Short: "Export the flow graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) for each flow of the app, or for one flow.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		found := false
		for _, gf := range ws.Flows.Groups() {
			if len(args) > 0 && gf.Group.ID != args[0] {
				continue
			}
			found = true
			fmt.Printf("%%%% %s\n", gf.Group.Title)
			fmt.Print(graph.GenerateMermaid(gf, nil))
		}
		if !found {
			fmt.Println("No matching flows found.")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
