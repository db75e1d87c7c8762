package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/chat-relay/backend/match"
	"github.com/adwski/chat-relay/backend/registry"
	"github.com/adwski/chat-relay/backend/roomcode"
	httpServer "github.com/adwski/chat-relay/backend/server/http"
	websocketServer "github.com/adwski/chat-relay/backend/server/websocket"
	"github.com/adwski/chat-relay/backend/service"
	sw "github.com/adwski/chat-relay/backend/switch"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type envConfig struct {
	APIListenAddr string `env:"API_LISTEN_ADDR" envDefault:":8080"`
	WSListenAddr  string `env:"WS_LISTEN_ADDR" envDefault:":8888"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"debug"`
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", envCfg.APIListenAddr, "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", envCfg.WSListenAddr, "websocket relay listen address")
		logLevel      = fs.StringP("log-level", "l", envCfg.LogLevel, "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	codes, err := roomcode.NewGenerator()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create room code generator")
	}

	swtch := sw.NewSwitch(&logger)
	svc := service.NewService(service.Config{
		Logger: &logger,
		RoomRegistry: registry.New(registry.Config{
			Logger: &logger,
			Codes:  codes,
			Groups: swtch,
		}),
		MatchEngine: match.NewEngine(&logger),
		Switch:      swtch,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:        &logger,
		StatsProvider: svc,
		ListenAddr:    *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		RelayService: svc,
		ListenAddr:   *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
