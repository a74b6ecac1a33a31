// Command reconcile compares every user's stored points total with the sum
// of their ledger records, or a single user's with -user. With -fix it
// rewrites drifted totals. A check without -fix changes nothing and exits 3
// when any total has drifted.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/oggyb/survey-exchange/internal/app"
	"github.com/oggyb/survey-exchange/internal/cache"
	"github.com/oggyb/survey-exchange/internal/config"
	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/logger"
)

func main() {
	fix := flag.Bool("fix", false, "rewrite drifted totals from the ledger")
	user := flag.String("user", "", "check a single user")
	flag.Parse()

	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()
	ctx := context.Background()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// the cache is optional here; without it only the DB totals are repaired
	var redisCache *cache.RedisCache
	if rc := cache.NewRedisCache(cfg); rc.Ping(ctx) == nil {
		redisCache = rc
		defer rc.Close()
	} else {
		log.Warn("redis unavailable, cached totals left as is")
		_ = rc.Close()
	}

	appCtx := app.New(cfg, database, redisCache, clockwork.NewRealClock(), log)
	ledger := app.BuildEngines(appCtx).Ledger

	drifted := 0
	switch {
	case *user != "" && *fix:
		rep, err := ledger.Reconcile(ctx, *user)
		if err != nil {
			log.Error("reconcile failed", "user", *user, "err", err)
			os.Exit(1)
		}
		log.Info("user checked", "user", rep.UserID, "stored", rep.StoredTotal, "ledger", rep.RecordSum, "repaired", rep.Repaired)
	case *user != "":
		rep, err := ledger.CheckIntegrity(ctx, *user)
		if err != nil {
			log.Error("integrity check failed", "user", *user, "err", err)
			os.Exit(1)
		}
		log.Info("user checked", "user", rep.UserID, "stored", rep.StoredTotal, "ledger", rep.RecordSum,
			"match_points", rep.MatchPoints, "consistent", rep.Consistent)
		if !rep.Consistent {
			drifted++
		}
	case !*fix:
		reports, err := ledger.CheckAll(ctx)
		if err != nil {
			log.Error("integrity check failed", "err", err)
			os.Exit(1)
		}
		for _, rep := range reports {
			log.Warn("total drifted", "user", rep.UserID, "stored", rep.StoredTotal, "ledger", rep.RecordSum)
		}
		drifted = len(reports)
		log.Info("check finished", "drifted", drifted)
	default:
		reports, err := ledger.ReconcileAll(ctx)
		if err != nil {
			log.Error("reconcile failed", "err", err)
			os.Exit(1)
		}
		for _, rep := range reports {
			if rep.Repaired {
				log.Info("total repaired", "user", rep.UserID, "was", rep.StoredTotal, "now", rep.RecordSum)
			}
		}
		log.Info("reconcile finished", "repaired", len(reports))
	}

	if drifted > 0 {
		os.Exit(3)
	}
}
