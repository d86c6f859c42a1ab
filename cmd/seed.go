/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/phishrange/apiserver/config"
	"github.com/phishrange/apiserver/internal/db"
	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
	"github.com/spf13/cobra"
)

type seedChallenge struct {
	Number          int                    `json:"challenge_number"`
	Flag            string                 `json:"flag"`
	CompleteMessage string                 `json:"complete_message"`
	Template        types.DispatchTemplate `json:"template"`
}

// seedCmd loads challenge definitions from a JSON file. Definitions are
// administered out of band; this is the bulk-load path.
var seedCmd = &cobra.Command{
	Use:   "seed <file.json>",
	Short: "Load challenge definitions from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}

		var seeds []seedChallenge
		if err := json.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("parse seed file: %w", err)
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		repo := store.NewChallengeRepository(dbConn)
		for _, seed := range seeds {
			if seed.Number < 1 {
				return fmt.Errorf("challenge number %d is not positive", seed.Number)
			}
			_, err := repo.Create(cmd.Context(), types.Challenge{
				Number:          seed.Number,
				Flag:            seed.Flag,
				CompleteMessage: seed.CompleteMessage,
				Template:        seed.Template,
			})
			if errors.Is(err, store.ErrDuplicate) {
				fmt.Fprintf(os.Stderr, "challenge %d already exists, skipping\n", seed.Number)
				continue
			}
			if err != nil {
				return fmt.Errorf("seed challenge %d: %w", seed.Number, err)
			}
			fmt.Printf("seeded challenge %d\n", seed.Number)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
