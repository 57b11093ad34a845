package app

import (
	"fmt"

	"rewardbridge/internal/api/handlers"
	"rewardbridge/internal/core"
	"rewardbridge/internal/scheduler"
)

// NewServer builds the HTTP server with every handler mounted. jobs backs
// the scan trigger and scheduler endpoints.
func (a *App) NewServer(jobs *scheduler.Scheduler) (*core.Server, error) {
	srv, err := core.NewServer(a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	for name, p := range a.Clients.Probes {
		srv.HealthProbes[name] = p
	}
	if a.Pool != nil {
		srv.HealthProbes["database"] = a.Pool
	}

	log := a.Logger.With("component", "api")
	webhook := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Rewards:          a.Approvals,
		SigningSecret:    a.Config.Board.SigningSecret.Unmask(),
		EmployeesBoardID: a.Config.Board.EmployeesBoardID,
		RewardsBoardID:   a.Config.Board.RewardsBoardID,
		Columns:          a.Catalog.Columns.Rewards,
		Logger:           log,
	})
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars, webhook.RegisterRoutes)

	milestones := handlers.NewMilestoneHandler(a.Scanner, jobs, log)
	rewards := handlers.NewRewardHandler(a.Approvals, srv.Validator, log)
	ops := handlers.NewOperationsHandler(handlers.OperationsConfig{
		Redemptions:     a.Redemptions,
		Products:        a.Products,
		Orders:          a.Clients.GiftCards,
		Jobs:            jobs,
		Reports:         a.Reports,
		DefaultMerchant: a.Catalog.DefaultProduct.Merchant,
		TestScanDelay:   a.Config.Scheduler.TestScanDelay,
		Logger:          log,
	})
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		milestones.RegisterRoutes,
		rewards.RegisterRoutes,
		ops.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}
