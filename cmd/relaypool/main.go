package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"relaypool/internal/service/web"
	"relaypool/internal/shared/config"
	"relaypool/internal/shared/logger"
	"relaypool/internal/shared/types"
	manager "relaypool/proxypool"
	"relaypool/proxypool/region"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "relaypool.ini")
	sourcesPath := filepath.Join(*configDir, "sources.yaml")

	// 1. 加载 .ini 行为配置
	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 加载 sources.yaml 来源配置
	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Failed to load sources file '%s'", sourcesPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 构建端点池
	var opts []manager.Option
	if cfg.PoolConf.GeoIPDatabase != "" {
		geo, err := region.OpenGeoIP(cfg.PoolConf.GeoIPDatabase)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.PoolConf.GeoIPDatabase).Msg("GeoIP database unavailable, using static region labels.")
		} else {
			defer geo.Close()
			opts = append(opts, manager.WithLabeler(geo))
		}
	}
	pool := manager.NewManager(ctx, cfg.PoolConf, sources, opts...)
	defer pool.Close()

	// 4. 启动 Web API
	var wg sync.WaitGroup
	hub := web.NewHub()
	go hub.Run(ctx)
	go hub.PushStats(ctx, pool, time.Duration(cfg.WebConf.StatsIntervalSeconds)*time.Second)

	server, err := web.StartServer(&wg, cfg.WebConf, pool, hub)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start web API.")
	}

	stats := pool.Stats()
	logger.Info().Int("total", stats.TotalProxies).Int("healthy", stats.HealthyProxies).Msg("Endpoint pool ready.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Web server shutdown failed.")
	}
	wg.Wait()
}
