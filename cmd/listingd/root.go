package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "listingd",
		Short:         "Keeps marketplace listings of trading accounts in sync with a desired set",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newHashCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
