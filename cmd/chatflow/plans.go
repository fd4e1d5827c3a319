package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List plans and their attached flows",
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		list := ws.Plans.Plans()
		if len(list) == 0 {
			fmt.Println("No plans found.")
			return
		}
		for i, p := range list {
			fmt.Printf("[%d] %s: %s\n", i, p.Title, p.Description)
			views, err := ws.Plans.Views(i)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			for pos, v := range views {
				fmt.Printf("    %d. %s\n", pos, v.Title)
			}
		}
	},
}

var plansAttachCmd = &cobra.Command{
	Use:   "attach <plan-index> <group-id>",
	Short: "Attach a flow to the end of a plan",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		attached, err := ws.Plans.AttachExisting(planIndex(args[0]), args[1])
		if err != nil {
			fmt.Printf("Error attaching flow: %v\n", err)
			os.Exit(1)
		}
		if !attached {
			fmt.Println("This flow is already attached to the plan.")
			return
		}
		savePlans(cmd, ws.Plans.Save)
	},
}

var plansDetachCmd = &cobra.Command{
	Use:   "detach <plan-index> <position>",
	Short: "Remove the attachment at a position",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		if err := ws.Plans.RemoveAttachmentAt(planIndex(args[0]), planIndex(args[1])); err != nil {
			fmt.Printf("Error detaching flow: %v\n", err)
			os.Exit(1)
		}
		savePlans(cmd, ws.Plans.Save)
	},
}

var plansMoveCmd = &cobra.Command{
	Use:   "move <plan-index> <from> <to>",
	Short: "Move an attached flow to another position",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ws := openWorkspace(cmd)
		mustLoad(cmd.Context(), ws)

		if err := ws.Plans.ReorderAttachments(planIndex(args[0]), planIndex(args[1]), planIndex(args[2])); err != nil {
			fmt.Printf("Error moving flow: %v\n", err)
			os.Exit(1)
		}
		savePlans(cmd, ws.Plans.Save)
	},
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansAttachCmd)
	plansCmd.AddCommand(plansDetachCmd)
	plansCmd.AddCommand(plansMoveCmd)
}

func planIndex(arg string) int {
	n, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Printf("Error: %q is not a number\n", arg)
		os.Exit(1)
	}
	return n
}

func savePlans(cmd *cobra.Command, save func(context.Context) error) {
	if err := save(cmd.Context()); err != nil {
		fmt.Printf("Error saving plans: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Plans saved.")
}
