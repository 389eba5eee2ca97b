// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"media-cardkey-platform/internal/config"
	"media-cardkey-platform/internal/domain/model"
	red "media-cardkey-platform/internal/infra/redis"
	"media-cardkey-platform/internal/usecase"

	"github.com/rs/zerolog"
)

// Seeds a development store with the default invitation config and a small
// batch of card keys, printing the plaintexts for manual testing.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()

	logger := zerolog.Nop()
	keysUC := usecase.NewCardKeyUseCase(red.NewCardKeyRepo(client), &logger)
	cfgUC := usecase.NewInvitationConfigUseCase(red.NewInvitationConfigRepo(client), &logger)

	inviteCfg, err := cfgUC.Get(ctx)
	if err != nil {
		log.Fatalf("invitation config: %v", err)
	}
	fmt.Printf("invitation config: enabled=%v reward=%d threshold=%d type=%s\n",
		inviteCfg.Enabled, inviteCfg.RewardPoints, inviteCfg.RedeemThreshold, inviteCfg.CardKeyType)

	existing, err := keysUC.List(ctx)
	if err != nil {
		log.Fatalf("list card keys: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d card keys already present. No changes.\n", len(existing))
		return
	}

	for _, typ := range []model.CardKeyType{model.CardKeyTypeWeek, model.CardKeyTypeMonth} {
		keys, err := keysUC.Create(ctx, typ, 3)
		if err != nil {
			log.Fatalf("create %s keys: %v", typ, err)
		}
		for _, k := range keys {
			fmt.Printf("  - %s (%s, expires %s)\n", k.Key, k.KeyType, k.ExpiresAt.Format("2006-01-02"))
		}
	}
	fmt.Println("seeded 6 card keys")
}
