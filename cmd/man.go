package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var (
	manDir string

	manCmd = &cobra.Command{
		Use:    "man",
		Short:  "Generate the manpages.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return genManPages(manDir)
		},
	}
)

func init() {
	manCmd.Flags().StringVar(&manDir, "dir", "man", "directory manpages are written to")
	rootCmd.AddCommand(manCmd)
}

func genManPages(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating %q: %w", dir, err)
	}

	header := &doc.GenManHeader{
		Title:   "IWPM",
		Section: "8",
		Source:  "iwpm " + builtCommit,
	}

	return doc.GenManTree(rootCmd, header, dir)
}
