/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/phishrange/apiserver/config"
	"github.com/phishrange/apiserver/internal/mail"
	"github.com/phishrange/apiserver/internal/mq"
	"github.com/phishrange/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// mailqCmd groups mail-queue utilities.
var mailqCmd = &cobra.Command{
	Use:   "mailq",
	Short: "Mail queue utilities",
}

// mailqDrainCmd sits where the external sender would: it consumes the mail
// queue and logs each job. Useful for local runs without a real sender.
var mailqDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Consume the mail queue and log outbound messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		queue, err := server.NewQueueBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer queue.Close()

		log := slog.Default()
		err = queue.Subscribe(cmd.Context(), cfg.Mail.Queue, func(ctx context.Context, msg mq.Message) error {
			var m mail.Message
			if err := json.Unmarshal(msg.Data, &m); err != nil {
				log.Error("undecodable mail job", "id", msg.ID, "err", err)
				return nil
			}
			log.Info("outbound mail",
				"id", msg.ID,
				"to", m.To,
				"subject", m.Subject,
				"challenge", m.ChallengeNumber,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mailqCmd)
	mailqCmd.AddCommand(mailqDrainCmd)
}
