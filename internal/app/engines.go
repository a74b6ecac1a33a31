package app

import (
	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/repository"
	"github.com/oggyb/survey-exchange/internal/service/expiry"
	"github.com/oggyb/survey-exchange/internal/service/matches"
	"github.com/oggyb/survey-exchange/internal/service/points"
	"github.com/oggyb/survey-exchange/internal/service/responses"
)

// Engines are the wired domain services. Every collaborator is passed in
// explicitly here; no engine looks another up at call time.
type Engines struct {
	Identity  *auth.Resolver
	Ledger    *points.Ledger
	Matches   *matches.Engine
	Responses *responses.Engine
	Sweeper   *expiry.Sweeper
}

func BuildEngines(appCtx *AppContext) *Engines {
	cfg := appCtx.Config.Exchange
	log := appCtx.Logger
	clock := appCtx.Clock

	users := repository.NewUserRepository(appCtx.DB)
	surveys := repository.NewSurveyRepository(appCtx.DB)
	matchRepo := repository.NewMatchRepository(appCtx.DB)
	responseRepo := repository.NewResponseRepository(appCtx.DB)

	var totals points.TotalsCache
	if appCtx.RedisCache != nil {
		totals = appCtx.RedisCache
	}
	ledger := points.NewLedger(users, repository.NewPointsRepository(appCtx.DB), matchRepo, totals, clock, log)
	if appCtx.RedisCache != nil {
		ledger.Subscribe(appCtx.RedisCache)
	}

	identity := auth.NewResolver(users, clock, log)

	matchEngine := matches.NewEngine(matchRepo, surveys, responseRepo, clock, log, matches.Options{
		TTL:         cfg.MatchTTL,
		BasePoints:  cfg.MatchBasePoints,
		MutualBonus: cfg.MutualBonus,
	})

	responseEngine := responses.NewEngine(
		responseRepo,
		surveys,
		repository.NewVerificationRepository(appCtx.DB),
		identity,
		ledger,
		matchEngine,
		clock,
		log,
		responses.Options{
			TTL:              cfg.ResponseTTL,
			DefaultIncentive: cfg.DefaultIncentive,
			PublicURL:        appCtx.Config.HTTP.PublicURL,
			Links:            appCtx.Tokens,
		},
	)

	sweeper := expiry.NewSweeper(matchEngine, responseEngine, ledger, surveys, cfg.PenaltyPoints, log)

	return &Engines{
		Identity:  identity,
		Ledger:    ledger,
		Matches:   matchEngine,
		Responses: responseEngine,
		Sweeper:   sweeper,
	}
}
