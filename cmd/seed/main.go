package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"game-activation-ledger/internal/config"
	"game-activation-ledger/internal/domain/model"
	pg "game-activation-ledger/internal/infra/db/postgres"
	"game-activation-ledger/internal/infra/logging"
	"game-activation-ledger/internal/infra/web"
	"game-activation-ledger/internal/usecase"
)

// seed upserts a small game catalog, generates one code batch per run and
// prints an admin token for trying the API.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	count := flag.Int("codes", 10, "codes to generate per game")
	prefix := flag.String("prefix", "", "optional PREFIX for the generated batch")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.UseMemoryStore() {
		log.Fatalf("seed needs a Postgres database.url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	games := pg.NewPostgresGameRepo(pool)
	catalog := []struct{ ID, Name string }{
		{"starfall", "Starfall Odyssey"},
		{"ironclad", "Ironclad Tactics"},
		{"mosslight", "Mosslight"},
	}
	var ids []string
	for _, c := range catalog {
		g, err := model.NewGame(c.ID, c.Name)
		if err != nil {
			log.Fatalf("game %q: %v", c.ID, err)
		}
		if err := games.Save(ctx, nil, g); err != nil {
			log.Fatalf("save game %q: %v", c.ID, err)
		}
		ids = append(ids, g.ID)
	}
	all, err := games.ListAll(ctx, nil)
	if err != nil {
		log.Fatalf("list games: %v", err)
	}
	names := make([]string, 0, len(all))
	for _, g := range all {
		names = append(names, g.ID)
	}
	fmt.Printf("catalog (%d games): %s\n", len(all), strings.Join(names, ", "))

	codeUC := usecase.NewCodeUseCase(pg.NewActivationCodeRepo(pool), games, pg.NewTxManager(pool), nil, usecase.CodeOptions{
		MaxPerGame:   cfg.Codes.MaxPerGame,
		MaxAttempts:  cfg.Codes.MaxAttempts,
		RetryBackoff: cfg.Codes.RetryBackoff,
		Groups:       cfg.Codes.Groups,
		GroupSize:    cfg.Codes.GroupSize,
	}, logging.Nop())

	req := model.GenerateRequest{GameIDs: ids, Count: *count, ActorID: "seed"}
	if *prefix != "" {
		req.Pattern, req.Prefix = model.PatternPrefix, *prefix
	}
	res, err := codeUC.Generate(ctx, req)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	fmt.Printf("batch %s: %d codes, %d failed slots\n", res.BatchTag, len(res.Succeeded), len(res.Failed))
	for _, c := range res.Succeeded {
		fmt.Printf("  %-10s %s\n", c.GameID, c.Code)
	}

	tok, err := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Mint("seed-admin", model.RoleAdmin, 24*time.Hour)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("admin token (24h): %s\n", tok)
	fmt.Println("✅ Seeding complete.")
}
