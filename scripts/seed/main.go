// Command seed loads demo users, suppliers, items and opening stock through
// the regular services. Running it twice is harmless.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stockbook/stockbook/internal/app"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/masterdata/suppliers"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/users"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	srv := app.NewServer(app.ServerDeps{Config: cfg, Logger: app.NewLogger(cfg), Pool: pool})
	ctx = shared.ContextWithActor(ctx, shared.Actor{ID: "seed", Username: "seed", Role: shared.RoleAdmin})

	fmt.Println("→ Seeding users...")
	if err := seedUsers(ctx, srv.Users); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	fmt.Println("→ Seeding suppliers...")
	if err := seedSuppliers(ctx, srv.Suppliers); err != nil {
		log.Fatalf("seed suppliers: %v", err)
	}
	fmt.Println("→ Seeding items and opening stock...")
	if err := seedItems(ctx, srv.Core.Inventory); err != nil {
		log.Fatalf("seed items: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedUsers(ctx context.Context, svc *users.Service) error {
	password := getenv("SEED_PASSWORD", "stockbook123")
	for _, in := range []users.CreateInput{
		{Username: "admin", Name: "Administrator", Role: shared.RoleAdmin, Password: password},
		{Username: "gudang", Name: "Warehouse Operator", Role: shared.RoleOperator, Password: password},
		{Username: "owner", Name: "Owner", Role: shared.RoleViewer, Password: password},
	} {
		if _, err := svc.CreateUser(ctx, in); ignoreConflict(err) != nil {
			return fmt.Errorf("%s: %w", in.Username, err)
		}
	}
	return nil
}

func seedSuppliers(ctx context.Context, svc *suppliers.Service) error {
	for _, in := range []suppliers.Input{
		{Code: "SUP-001", Name: "PT Sumber Tepung", Contact: "Budi", Phone: "+62 21 555 0101"},
		{Code: "SUP-002", Name: "CV Gula Manis", Contact: "Sari", Email: "sales@gulamanis.example"},
	} {
		if _, err := svc.Create(ctx, in); ignoreConflict(err) != nil {
			return fmt.Errorf("%s: %w", in.Code, err)
		}
	}
	return nil
}

func seedItems(ctx context.Context, svc *inventory.Service) error {
	seeds := []struct {
		input   inventory.ItemInput
		opening int64
	}{
		{inventory.ItemInput{Kind: ledger.KindRM, Code: "TPG-01", Name: "Tepung Terigu", Category: "Bahan", Threshold: 50, QtyPerFG: 0.25}, 200},
		{inventory.ItemInput{Kind: ledger.KindRM, Code: "GLA-01", Name: "Gula Pasir", Category: "Bahan", Threshold: 30, QtyPerFG: 0.1}, 80},
		{inventory.ItemInput{Kind: ledger.KindRM, Code: "DUS-01", Name: "Dus Kemasan", Category: "Kemasan", Threshold: 100}, 40},
		{inventory.ItemInput{Kind: ledger.KindFG, Code: "ROT-01", Name: "Roti Tawar", Category: "Roti", Threshold: 20}, 60},
		{inventory.ItemInput{Kind: ledger.KindFG, Code: "KUE-01", Name: "Kue Kering", Category: "Kue", Threshold: 10}, 0},
	}
	for _, seed := range seeds {
		item, err := svc.CreateItem(ctx, seed.input)
		if errors.Is(err, shared.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", seed.input.Code, err)
		}
		if seed.opening == 0 {
			continue
		}
		if _, err := svc.StockIn(ctx, inventory.StockRequest{
			Kind:   item.Kind,
			ItemID: item.ID,
			Qty:    seed.opening,
			Remark: "Opening balance",
		}, "seed-opening-"+item.ID); err != nil {
			return fmt.Errorf("opening %s: %w", item.Code, err)
		}
	}
	return nil
}

func ignoreConflict(err error) error {
	if errors.Is(err, shared.ErrConflict) {
		return nil
	}
	return err
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
