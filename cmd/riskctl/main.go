package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/OlendLabs/olend-risk/config"
	"github.com/OlendLabs/olend-risk/core"
	"github.com/OlendLabs/olend-risk/core/events"
	"github.com/OlendLabs/olend-risk/observability/logging"
)

func main() {
	configFile := flag.String("config", "./risk.toml", "Path to the risk configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OLEND_ENV"))
	logger := logging.Setup("riskctl", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Assembling the core re-runs every section validator, so a clean exit
	// means the file would also boot an embedding node.
	if _, _, err := core.New(cfg, events.NoopEmitter{}); err != nil {
		logger.Error("Config rejected", slog.Any("error", err))
		os.Exit(1)
	}

	assets := make([]string, 0, len(cfg.Feeds))
	for asset := range cfg.Feeds {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		feed := cfg.Feeds[asset].FeedConfig()
		logger.Info("Feed configured",
			slog.String("asset", asset),
			slog.String("feedID", feed.FeedID),
			slog.Uint64("decimals", uint64(feed.Decimals)),
			slog.Duration("heartbeat", feed.Heartbeat),
			slog.Uint64("maxDeviationBps", feed.MaxDeviationBps),
			slog.Uint64("maxConfidenceRatioBps", feed.MaxConfidenceRatioBps),
		)
	}

	defaults := cfg.Breaker.Thresholds()
	logger.Info("Breaker defaults",
		slog.Uint64("failureThreshold", uint64(defaults.FailureThreshold)),
		slog.Duration("timeWindow", defaults.TimeWindow),
		slog.Duration("recoveryTimeout", defaults.RecoveryTimeout),
		slog.Uint64("volumeThreshold", defaults.VolumeThreshold),
	)

	policy := cfg.Policy.CollateralPolicy()
	logger.Info("Collateral policy",
		slog.Uint64("hardCapBps", policy.HardCapBps),
		slog.Uint64("warningThresholdBps", policy.WarningThresholdBps),
		slog.Uint64("liquidationThresholdBps", policy.LiquidationThresholdBps),
	)

	fmt.Printf("config ok: %d feeds, %d breaker overrides\n", len(cfg.Feeds), len(cfg.BreakerKeys))
}
