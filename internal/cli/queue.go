package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dominoclient/internal/config"
	"dominoclient/internal/queue"
)

// QueueCmd returns the offline-queue inspection command.
func QueueCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the durable offline action queue",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to client.yaml")

	list := &cobra.Command{
		Use:   "list <match-id>",
		Short: "List unconfirmed actions queued for a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			persist, err := queue.OpenSQLite(cfg.Queue.Path)
			if err != nil {
				return err
			}
			defer persist.Close()

			ops, err := persist.LoadQueue(args[0])
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				dimColor.Println("queue is empty")
				return nil
			}
			for _, op := range ops {
				age := time.Since(op.CreatedAt).Round(time.Second)
				switch op.Kind {
				case queue.KindPlay:
					fmt.Printf("%s  play %s  retries=%d  age=%s\n", op.ID, op.Piece, op.RetryCount, age)
				default:
					fmt.Printf("%s  pass  retries=%d  age=%s\n", op.ID, op.RetryCount, age)
				}
			}
			return nil
		},
	}

	purge := &cobra.Command{
		Use:   "purge <match-id>",
		Short: "Drop all queued actions for a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			persist, err := queue.OpenSQLite(cfg.Queue.Path)
			if err != nil {
				return err
			}
			defer persist.Close()

			if err := persist.SaveQueue(args[0], nil); err != nil {
				return err
			}
			okColor.Println("queue purged")
			return nil
		},
	}

	cmd.AddCommand(list, purge)
	return cmd
}
