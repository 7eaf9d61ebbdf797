package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the identity hash of a listing spec read as JSON from stdin",
		Example: `  echo '{"id":"440_123"}' | listingd hash
  echo '{"item":{"defindex":5021,"quality":6}}' | listingd hash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dec := json.NewDecoder(cmd.InOrStdin())
			dec.UseNumber()

			var spec domain.ListingSpec
			if err := dec.Decode(&spec); err != nil {
				return fmt.Errorf("decode listing spec: %w", err)
			}

			h, err := domain.Hash(spec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
}
