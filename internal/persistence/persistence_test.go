package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/domain"
)

func TestNoDSNFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	pg, err := NewPostgres(ctx, config.PostgresConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new postgres: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(ctx); err == nil {
		t.Fatal("ping without pool should fail")
	}
	tickets, _ := pg.Repositories()
	ticket := &domain.Ticket{Subject: "s", Status: domain.TicketStatusOpen}
	if err := tickets.Create(ctx, ticket); err != nil || ticket.ID == "" {
		t.Fatalf("memory create = %q, %v", ticket.ID, err)
	}
	if err := RunMigrations(ctx, pg.PoolHandle(), t.TempDir(), zap.NewNop()); err != nil {
		t.Fatalf("migrations without pool: %v", err)
	}
}

func TestNoRedisAddr(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	if r != nil {
		t.Fatalf("redis = %+v, want nil", r)
	}
	if err := r.Ping(context.Background()); err == nil {
		t.Fatal("nil redis ping should fail")
	}
	r.Close()
}

func TestMigrationFilesPresent(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("..", "..", DefaultMigrationsDir))
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sql" {
			found = true
		}
	}
	if !found {
		t.Fatal("no .sql migrations found")
	}
}
