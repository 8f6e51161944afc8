package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/adapter/storage"
	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/core/idgen"
	"github.com/rl1809/catalog-service/internal/core/lock"
	"github.com/rl1809/catalog-service/internal/core/service"
	"github.com/rl1809/catalog-service/internal/logger"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/catalog?parseTime=true"
	redisAddr     = "localhost:6379"
	productID     = 900001
	variantID     = 900001
	userID        = 900001
	initialStock  = 20
	totalRequests = 50
	busyRetries   = 200
)

// noopSync skips index refreshes; the stress run only checks stock.
type noopSync struct{}

func (noopSync) RequestSync(context.Context, uint64) error { return nil }

func main() {
	ctx := context.Background()

	zl, err := logger.New("development", "warn")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	if err := seed(ctx, db); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	redisAdapter := storage.NewRedisAdapter(rdb)
	catalog := service.NewCatalogCache(mysqlAdapter, redisAdapter, "variantDetails", 0, zl)
	if err := catalog.Invalidate(ctx, variantID); err != nil {
		log.Fatalf("failed to clear cache: %v", err)
	}

	ids, err := idgen.New(idgen.Config{DatacenterID: 31, WorkerID: 31})
	if err != nil {
		log.Fatalf("failed to init id generator: %v", err)
	}
	orderService := service.NewOrderService(mysqlAdapter, lock.New(redisAdapter, zl), ids, catalog, noopSync{}, 30*time.Second, zl)

	var (
		successCount atomic.Int32
		soldOutCount atomic.Int32
		busyCount    atomic.Int32
		errorCount   atomic.Int32
	)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := service.OrderRequest{UserID: userID, VariantID: variantID, Quantity: 1, Address: "stress"}

			for attempt := 0; attempt < busyRetries; attempt++ {
				_, err := orderService.CreateOrder(ctx, req)
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.Is(err, domain.ErrBusy):
					busyCount.Add(1)
					time.Sleep(5 * time.Millisecond)
				case errors.Is(err, domain.ErrInsufficientStock):
					soldOutCount.Add(1)
					return
				default:
					zl.Error("order failed", zap.Error(err))
					errorCount.Add(1)
					return
				}
			}
			errorCount.Add(1)
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Busy Retries:     %d\n", busyCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	var finalStock, orders int
	if err := db.QueryRowContext(ctx, `SELECT quantity FROM stock WHERE variant_id = ?`, variantID).Scan(&finalStock); err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items WHERE variant_id = ?`, variantID).Scan(&orders); err != nil {
		log.Fatalf("failed to count orders: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Orders Persisted: %d\n", orders)

	if finalStock == 0 && orders == initialStock {
		fmt.Println("PASS: Stock depleted to 0 with one order per unit")
	} else {
		fmt.Printf("FAIL: Expected stock 0 and %d orders, got %d and %d\n", initialStock, finalStock, orders)
	}
}

func seed(ctx context.Context, db *sql.DB) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE o FROM orders o JOIN order_items oi ON oi.order_id = o.id WHERE oi.variant_id = ?`, []any{variantID}},
		{`DELETE FROM order_items WHERE variant_id = ?`, []any{variantID}},
		{`INSERT INTO products (id, name, description) VALUES (?, 'Stress Chicken Breast', 'stress fixture')
			ON DUPLICATE KEY UPDATE name = VALUES(name)`, []any{productID}},
		{`INSERT INTO variants (id, product_id, code, size_label, price, energy, active) VALUES (?, ?, 'STRESS-1', '500g', 9.90, 165, 1)
			ON DUPLICATE KEY UPDATE active = 1`, []any{variantID, productID}},
		{`INSERT INTO stock (variant_id, quantity) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`, []any{variantID, initialStock}},
		{`INSERT INTO users (id, user_name) VALUES (?, 'stress')
			ON DUPLICATE KEY UPDATE user_name = VALUES(user_name)`, []any{userID}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.query, s.args...); err != nil {
			return err
		}
	}
	return nil
}
