/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/pkgindex/backend-go/pkg/archive"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Validate zip archives locally without uploading them",
	Args:  cobra.MinimumNArgs(1),
	Run:   check,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("json", false, "print verdicts as json")
}

type checkResult struct {
	File   string `json:"file"`
	Ok     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func check(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")

	failed := false
	results := make([]checkResult, 0, len(args))
	for _, path := range args {
		ok, reason := archive.Check(path)
		if !ok {
			failed = true
		}
		results = append(results, checkResult{File: path, Ok: ok, Reason: reason})
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Println("could not encode verdicts:", err)
			os.Exit(1)
		}
	} else {
		for _, r := range results {
			if r.Ok {
				fmt.Printf("%s: ok\n", r.File)
			} else {
				fmt.Printf("%s: rejected: %s\n", r.File, r.Reason)
			}
		}
	}

	if failed {
		os.Exit(1)
	}
}
