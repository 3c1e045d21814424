package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"stonepot/internal/domain"
	"stonepot/internal/events"
	"stonepot/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

var userIDSeq atomic.Int64

func init() {
	// distinct per test run so reruns against the same database never
	// collide on wallet ids
	userIDSeq.Store(time.Now().UnixNano())
}

func nextUserID() int64 {
	return userIDSeq.Add(1)
}

func connectDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	applyMigrations(t, db)
	return db
}

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "..", "internal", "migrations")
	files, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migDir, f.Name()))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := db.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", f.Name(), err)
		}
	}
}

type testServices struct {
	wallet  *service.WalletService
	settler *service.SettlementService
	games   *service.GameService
	bus     *events.Bus
}

func newServices(db *pgxpool.Pool) *testServices {
	bus := events.NewBus()
	wallet := service.NewWalletService(db)
	settler := service.NewSettlementService(db, wallet, bus)
	games := service.NewGameService(db, wallet, settler, service.GameLimits{
		MinStake:         1,
		MaxStake:         10_000_000,
		MaxPlayers:       20,
		CommissionCapBps: 2000,
	})
	return &testServices{wallet: wallet, settler: settler, games: games, bus: bus}
}

// fundedUser opens a wallet and credits it.
func fundedUser(t *testing.T, svc *testServices, amount int64) int64 {
	t.Helper()
	ctx := context.Background()
	userID := nextUserID()
	if err := svc.wallet.Register(ctx, userID); err != nil {
		t.Fatalf("register wallet: %v", err)
	}
	if amount > 0 {
		ref := "test-fund:" + strconv.FormatInt(userID, 10)
		if _, err := svc.wallet.Credit(ctx, userID, amount, ref, domain.KindDeposit, nil); err != nil {
			t.Fatalf("fund wallet: %v", err)
		}
	}
	return userID
}
