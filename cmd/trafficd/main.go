package main

import (
	"github.com/adlift/trafficd/internal/campaign"
	"github.com/adlift/trafficd/internal/campaign/scanner"
	"github.com/adlift/trafficd/internal/clock"
	"github.com/adlift/trafficd/internal/config"
	"github.com/adlift/trafficd/internal/mailer"
	"github.com/adlift/trafficd/internal/notification"
	"github.com/adlift/trafficd/internal/observability"
	"github.com/adlift/trafficd/internal/queue"
	"github.com/adlift/trafficd/internal/refund"
	walletrepository "github.com/adlift/trafficd/internal/wallet/repository"
	"github.com/adlift/trafficd/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		queue.Module,
		notification.Module,
		campaign.Module,
		fx.Provide(walletrepository.Provide),

		scanner.Module,
		refund.Module,
		mailer.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
