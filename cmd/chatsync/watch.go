package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Prismer-AI/Prismer/sdk/chatsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchFilter      string
	watchMetricsAddr string
)

func init() {
	watchCmd.Flags().StringVarP(&watchFilter, "filter", "f", "all", "Filter: all, starred, muted, archived, groups, companies")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9102)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll conversations and print changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := chatsync.ParseFilter(watchFilter)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		s, err := openSession(chatsync.WithRegisterer(reg))
		if err != nil {
			return err
		}
		defer s.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var srv *http.Server
		if watchMetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv = &http.Server{Addr: watchMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("metrics server failed", zap.Error(err))
				}
			}()
			s.log.Info("serving metrics", zap.String("addr", watchMetricsAddr))
		}

		s.engine.On(chatsync.EventConversationsChanged, func(string, any) {
			fmt.Printf("── %s ──\n", time.Now().Format("15:04:05"))
			printConversations(s.engine.Visible(filter, ""))
		})
		s.engine.On(chatsync.EventLoadFailed, func(_ string, payload any) {
			if lf, ok := payload.(chatsync.LoadFailed); ok {
				fail("refresh failed: %v", lf.Err)
			}
		})

		if err := s.engine.Start(ctx); err != nil {
			fail("initial refresh failed: %v", err)
		}
		<-ctx.Done()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	},
}
