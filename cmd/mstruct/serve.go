package main

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"MarketStructure/internal/notifier"
	"MarketStructure/internal/scheduler"
	"MarketStructure/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var pollNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP tools, the event stream and the watch-list scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			an, store, err := buildAnalyzer(cfg)
			if err != nil {
				return err
			}
			rec := newRecorder(cfg)
			defer rec.Close()

			var n notifier.Notifier = notifier.Noop{}
			var tg *notifier.TelegramNotifier
			if cfg.Telegram.BotToken != "" {
				tg = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
				n = tg
			}

			hub := server.NewHub()
			defer hub.Close()

			watchlist := make([]string, 0, len(cfg.Scheduler.Watchlist))
			for _, s := range cfg.Scheduler.Watchlist {
				watchlist = append(watchlist, strings.ToUpper(s))
			}
			if len(watchlist) > 0 {
				sched := scheduler.NewScheduler(ctx, an, n, rec, hub, store, an.Calendar(), watchlist)
				if err := sched.RegisterAll(cfg.Scheduler.PollCron, cfg.Scheduler.PurgeCron); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				if pollNow {
					go sched.RunPollNow()
				}
			} else {
				log.Warn().Msg("empty watch list, scheduler disabled")
			}

			if tg != nil {
				def := ""
				if len(watchlist) > 0 {
					def = watchlist[0]
				}
				router := notifier.NewCommandRouter(an, def)
				go tg.StartPolling(ctx, router.Handle)
				log.Info().Msg("telegram polling started")
			}

			err = server.New(an, rec, hub).ListenAndServe(ctx, cfg.Server.Addr)
			log.Info().Msg("shutting down")
			return err
		},
	}
	cmd.Flags().BoolVar(&pollNow, "poll-now", false, "poll the watch list once at startup")
	return cmd
}
