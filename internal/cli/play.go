package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dominoclient/internal/breaker"
	"dominoclient/internal/config"
	"dominoclient/internal/conflict"
	"dominoclient/internal/engine"
	"dominoclient/internal/journal"
	"dominoclient/internal/ports"
	"dominoclient/internal/ports/nakama"
	"dominoclient/internal/queue"
	"dominoclient/internal/realtime"
	"dominoclient/internal/store"
	"dominoclient/internal/validator"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// PlayCmd returns the interactive play session command.
func PlayCmd() *cobra.Command {
	var (
		configPath string
		token      string
		userID     string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "play <match-id>",
		Short: "Join a match and play interactively",
		Long: `Join a match and play from an interactive prompt.

Session commands:
  play <a> <b>      play the piece [a|b]
  pass              pass the turn
  auto              auto-play (first connectable piece, else pass)
  status            show sync status, queue depth and breaker state
  board             show the board line and your hand
  conflicts         list pending conflicts
  resolve <id> <use_local|use_server|merge>
  force             discard local state, adopt the server's
  quit              leave the session`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID := args[0]
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Server.Token
			}
			if userID == "" {
				userID = cfg.Server.UserID
			}
			if token == "" || userID == "" {
				return fmt.Errorf("server token and user id are required (flags or config)")
			}
			return runSession(cmd.Context(), cfg, matchID, token, userID, verbose)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to client.yaml")
	cmd.Flags().StringVar(&token, "token", "", "session token (overrides config)")
	cmd.Flags().StringVar(&userID, "user", "", "local user id (overrides config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug detail")
	return cmd
}

func runSession(ctx context.Context, cfg config.Config, matchID, token, userID string, verbose bool) error {
	logger := ports.NewStdLogger("[dominoctl] ", verbose)

	persist, err := queue.OpenSQLite(cfg.Queue.Path)
	if err != nil {
		return fmt.Errorf("open queue db: %w", err)
	}
	defer persist.Close()

	q := queue.New(matchID, persist, queue.Options{
		MaxItems:      cfg.Queue.MaxItems,
		MaxAge:        cfg.Queue.MaxAge(),
		FlushDebounce: cfg.Queue.FlushDebounce(),
	}, logger)
	if err := q.Load(); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	if n := q.Len(); n > 0 {
		warnColor.Printf("restored %d unconfirmed actions from the last session\n", n)
	}

	var jr *journal.Journal
	if cfg.Journal.Enabled {
		jr, err = journal.Open(cfg.Journal.Dir, matchID)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jr.Close()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Server.Timeout())
	client, err := nakama.Dial(dialCtx, cfg.Server.URL, token, logger)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	st := store.New()
	rec := conflict.NewReconciler(st, logger)
	br := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown(), cfg.Breaker.MaxCooldown(), logger)
	br.OnTransition = func(open bool) {
		if open {
			errColor.Println("! service degraded, actions will be queued")
		} else {
			okColor.Println("service recovered")
		}
	}

	eng := engine.New(engine.Config{
		UserID:         userID,
		MatchID:        matchID,
		CommitTimeout:  cfg.Sync.CommitTimeout(),
		MaxRetries:     cfg.Sync.MaxRetries,
		RetryBaseDelay: cfg.Sync.RetryBase(),
		RetryMaxDelay:  cfg.Sync.RetryMax(),
		TurnDuration:   cfg.Turn.Duration(),
	}, nakama.NewService(client), st, q, br, validator.New(0, 0), rec, jr, logger)
	defer eng.Close()
	eng.OnNotify = printNotification

	adapter := realtime.New(realtime.Options{
		CheckInterval:     cfg.Realtime.CheckInterval(),
		ConnectedWithin:   cfg.Realtime.ConnectedWithin(),
		DisconnectedAfter: cfg.Realtime.ReconnectingWithin(),
		SnapshotDebounce:  cfg.Realtime.SnapshotDebounce(),
	}, eng.HandleServerSnapshot, eng.OnLiveness, logger)
	client.OnEvent = adapter.HandleEvent
	client.OnHeartbeat = adapter.Heartbeat
	adapter.Start()
	defer adapter.Stop()

	joinCtx, cancel := context.WithTimeout(ctx, cfg.Server.Timeout())
	err = client.JoinMatch(joinCtx, matchID)
	cancel()
	if err != nil {
		return err
	}
	okColor.Printf("joined match %s as %s\n", matchID, userID)

	return prompt(eng, userID)
}

func prompt(eng *engine.Engine, userID string) error {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "play":
			if len(fields) != 3 {
				errColor.Println("usage: play <a> <b>")
				break
			}
			a, errA := strconv.Atoi(fields[1])
			b, errB := strconv.Atoi(fields[2])
			if errA != nil || errB != nil {
				errColor.Println("pips must be numbers")
				break
			}
			if err := eng.Play([]int{a, b}); err != nil {
				errColor.Println(err)
			}
		case "pass":
			if err := eng.Pass(); err != nil {
				errColor.Println(err)
			}
		case "auto":
			if err := eng.AutoPlay(); err != nil {
				errColor.Println(err)
			}
		case "status":
			printStatus(eng.Status())
		case "board":
			printBoard(eng.Status(), userID)
		case "conflicts":
			printConflicts(eng.Conflicts())
		case "resolve":
			if len(fields) != 3 {
				errColor.Println("usage: resolve <id> <use_local|use_server|merge>")
				break
			}
			if err := eng.ResolveConflict(fields[1], conflict.Resolution(fields[2])); err != nil {
				errColor.Println(err)
			} else {
				okColor.Println("resolved")
			}
		case "force":
			if err := eng.ForceReconcile(); err != nil {
				errColor.Println(err)
			} else {
				okColor.Println("server state adopted")
			}
		default:
			errColor.Printf("unknown command %q\n", fields[0])
		}
		fmt.Print("> ")
	}
	return sc.Err()
}

func printNotification(n engine.Notification) {
	switch n.Level {
	case "error":
		errColor.Println("! " + n.Message)
	case "warn":
		warnColor.Println("~ " + n.Message)
	default:
		dimColor.Println(n.Message)
	}
}

func printStatus(s engine.Status) {
	var syncColor *color.Color
	switch s.Sync {
	case engine.SyncSynced:
		syncColor = okColor
	case engine.SyncPending:
		syncColor = warnColor
	default:
		syncColor = errColor
	}
	syncColor.Printf("sync: %s\n", s.Sync)
	fmt.Printf("liveness: %s  queue: %d  in-flight: %v\n", s.Liveness, s.QueueDepth, s.InFlight)
	if s.Breaker.Open {
		errColor.Printf("breaker: open, next attempt %s\n", s.Breaker.NextAttempt.Format("15:04:05"))
	} else {
		fmt.Printf("breaker: closed (%d recent failures)\n", s.Breaker.Failures)
	}
	if len(s.Conflicts) > 0 {
		errColor.Printf("conflicts pending: %d (see 'conflicts')\n", len(s.Conflicts))
	}
}

func printBoard(s engine.Status, userID string) {
	if !s.HasState {
		warnColor.Println("no match state yet")
		return
	}
	line := make([]string, len(s.Snapshot.Match.Board.Pieces))
	for i, p := range s.Snapshot.Match.Board.Pieces {
		line[i] = p.String()
	}
	fmt.Printf("board: %s\n", strings.Join(line, " "))
	if me, ok := s.Snapshot.Players[userID]; ok {
		hand := make([]string, len(me.Hand))
		for i, p := range me.Hand {
			hand[i] = p.String()
		}
		fmt.Printf("hand:  %s\n", strings.Join(hand, " "))
	}
	turn := s.Snapshot.Match.CurrentTurnID
	if turn == userID {
		okColor.Println("it is your turn")
	} else {
		dimColor.Printf("waiting for %s\n", turn)
	}
}

func printConflicts(conflicts []conflict.Conflict) {
	if len(conflicts) == 0 {
		okColor.Println("no pending conflicts")
		return
	}
	for _, c := range conflicts {
		errColor.Printf("%s  %s (severity %s)\n", c.ID, c.Type, c.Severity)
		fmt.Printf("  local: %v\n  server: %v\n", c.Local, c.Server)
	}
}
