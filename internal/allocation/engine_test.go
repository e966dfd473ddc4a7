package allocation

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/rifa-backend/pkg/db"
	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/rifa-backend/pkg/db/types"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/metrics"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
)

type testEnv struct {
	conn     *gorm.DB
	engine   *Engine
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "allocation.db")+"?_busy_timeout=5000"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// SQLite allows one writer; with a single connection parallel callers run
	// their transactions back to back, so version conflicts never occur here.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return newEngineEnv(t, conn, maxAttempts)
}

func newEngineEnv(t *testing.T, conn *gorm.DB, maxAttempts int) *testEnv {
	t.Helper()
	if err := conn.AutoMigrate(&models.Raffle{}, &models.RaffleTicket{}, &models.Order{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "allocation-test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	engine, err := NewEngine(EngineParams{
		DB:          dbpkg.NewFromConn(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:      logg,
		Metrics:     metrics.NewAllocationMetrics(reg),
		MaxAttempts: maxAttempts,
		BaseBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testEnv{conn: conn, engine: engine, registry: reg}
}

func (e *testEnv) seedRaffle(t *testing.T, total int, taken []int) *models.Raffle {
	t.Helper()
	raffle := &models.Raffle{
		Name:         "Moto 2026",
		TotalTickets: total,
		SoldTickets:  len(taken),
		TicketPrice:  decimal.RequireFromString("50.00"),
		Currency:     enums.CurrencyMXN,
	}
	if err := e.conn.Create(raffle).Error; err != nil {
		t.Fatalf("seed raffle: %v", err)
	}
	if len(taken) > 0 {
		holder := uuid.New()
		rows := make([]models.RaffleTicket, 0, len(taken))
		for _, n := range taken {
			rows = append(rows, models.RaffleTicket{RaffleID: raffle.ID, Number: n, OrderID: holder})
		}
		if err := e.conn.Create(&rows).Error; err != nil {
			t.Fatalf("seed taken tickets: %v", err)
		}
	}
	return raffle
}

func (e *testEnv) seedOrder(t *testing.T, raffleID uuid.UUID, qty int, paymentRef string) *models.Order {
	t.Helper()
	order := &models.Order{
		RaffleID:     raffleID,
		BuyerName:    "Lupita",
		BuyerContact: "5511111111",
		Qty:          qty,
		Status:       enums.OrderStatusCreated,
		PaymentRef:   paymentRef,
		AmountDue:    decimal.NewFromInt(int64(qty) * 50),
		Currency:     enums.CurrencyMXN,
	}
	if err := e.conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (e *testEnv) reloadRaffle(t *testing.T, id uuid.UUID) models.Raffle {
	t.Helper()
	var raffle models.Raffle
	if err := e.conn.First(&raffle, "id = ?", id).Error; err != nil {
		t.Fatalf("reload raffle: %v", err)
	}
	return raffle
}

func (e *testEnv) reloadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := e.conn.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (e *testEnv) countRows(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := e.conn.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func allocateReq(order *models.Order) Request {
	return Request{
		RaffleID:      order.RaffleID,
		OrderID:       order.ID,
		PaymentRef:    order.PaymentRef,
		PaymentStatus: "COMPLETED",
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
	return typed
}

func TestAllocateAssignsDistinctTicketsInRange(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 10, nil)
	order := env.seedOrder(t, raffle.ID, 3, "PAY-1")

	res, err := env.engine.Allocate(context.Background(), allocateReq(order))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if res.AlreadyPaid {
		t.Fatalf("first allocation must not report already paid")
	}
	assertDistinctInRange(t, res.Tickets, 3, 10)

	updated := env.reloadRaffle(t, raffle.ID)
	if updated.SoldTickets != 3 {
		t.Fatalf("expected sold 3, got %d", updated.SoldTickets)
	}
	if updated.BuyersCount != 1 {
		t.Fatalf("expected buyers 1, got %d", updated.BuyersCount)
	}
	if updated.Version != raffle.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}

	paid := env.reloadOrder(t, order.ID)
	if paid.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", paid.Status)
	}
	if paid.PaidAt == nil || paid.PaymentStatus == nil || *paid.PaymentStatus != "COMPLETED" {
		t.Fatalf("expected paidAt and payment status to be recorded")
	}
	if got := paid.Tickets.Sorted(); !equalInts(got, res.Tickets) {
		t.Fatalf("stored tickets %v differ from returned %v", got, res.Tickets)
	}

	if got := env.countRows(t, &models.RaffleTicket{}, "raffle_id = ?", raffle.ID); got != 3 {
		t.Fatalf("expected 3 taken rows, got %d", got)
	}
	if got := env.countRows(t, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventOrderPaid, order.ID); got != 1 {
		t.Fatalf("expected one order_paid event, got %d", got)
	}
}

func TestAllocateInsufficientInventoryLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 10, []int{1, 2, 3, 4, 5, 6, 7, 8, 9})
	order := env.seedOrder(t, raffle.ID, 2, "PAY-2")

	_, err := env.engine.Allocate(context.Background(), allocateReq(order))
	typed := assertCode(t, err, pkgerrors.CodeInsufficientInventory)
	details, ok := typed.Details().(map[string]any)
	if !ok || details["remaining"] != 1 {
		t.Fatalf("expected remaining=1 details, got %#v", typed.Details())
	}

	if updated := env.reloadRaffle(t, raffle.ID); updated.SoldTickets != 9 || updated.Version != raffle.Version {
		t.Fatalf("raffle changed: sold=%d version=%d", updated.SoldTickets, updated.Version)
	}
	if stored := env.reloadOrder(t, order.ID); stored.Status != enums.OrderStatusCreated || len(stored.Tickets) != 0 {
		t.Fatalf("order changed: status=%s tickets=%v", stored.Status, stored.Tickets)
	}
	if got := env.countRows(t, &models.RaffleTicket{}, "raffle_id = ?", raffle.ID); got != 9 {
		t.Fatalf("expected 9 taken rows, got %d", got)
	}
}

func TestAllocateAlreadyPaidReturnsStoredTickets(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 10, []int{4, 7})
	order := env.seedOrder(t, raffle.ID, 2, "PAY-3")
	now := time.Now().UTC()
	if err := env.conn.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":  enums.OrderStatusPaid,
		"tickets": dbtypes.TicketNumbers{4, 7},
		"paid_at": now,
	}).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	res, err := env.engine.Allocate(context.Background(), allocateReq(order))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !res.AlreadyPaid || !equalInts(res.Tickets, []int{4, 7}) {
		t.Fatalf("expected stored [4 7], got %+v", res)
	}
	if updated := env.reloadRaffle(t, raffle.ID); updated.SoldTickets != 2 || updated.Version != raffle.Version || updated.BuyersCount != 0 {
		t.Fatalf("raffle must not change: %+v", updated)
	}
	if got := env.countRows(t, &models.OutboxEvent{}, "aggregate_id = ?", order.ID); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
}

func TestAllocateIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 20, nil)
	order := env.seedOrder(t, raffle.ID, 4, "PAY-4")

	first, err := env.engine.Allocate(context.Background(), allocateReq(order))
	if err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := env.engine.Allocate(context.Background(), allocateReq(order))
		if err != nil {
			t.Fatalf("repeat allocate: %v", err)
		}
		if !again.AlreadyPaid || !equalInts(again.Tickets, first.Tickets) {
			t.Fatalf("repeat returned %v, want %v", again.Tickets, first.Tickets)
		}
	}

	updated := env.reloadRaffle(t, raffle.ID)
	if updated.SoldTickets != 4 || updated.BuyersCount != 1 {
		t.Fatalf("expected one commit, got sold=%d buyers=%d", updated.SoldTickets, updated.BuyersCount)
	}
}

func TestAllocatePaymentMismatch(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 10, nil)
	order := env.seedOrder(t, raffle.ID, 1, "PAY-REAL")

	req := allocateReq(order)
	req.PaymentRef = "PAY-OTHER"
	_, err := env.engine.Allocate(context.Background(), req)
	assertCode(t, err, pkgerrors.CodePaymentMismatch)

	if stored := env.reloadOrder(t, order.ID); stored.Status != enums.OrderStatusCreated {
		t.Fatalf("order must stay created, got %s", stored.Status)
	}
	if updated := env.reloadRaffle(t, raffle.ID); updated.SoldTickets != 0 {
		t.Fatalf("raffle must not change, sold=%d", updated.SoldTickets)
	}
}

func TestAllocateNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 10, nil)
	other := env.seedRaffle(t, 10, nil)
	order := env.seedOrder(t, raffle.ID, 1, "PAY-5")

	req := allocateReq(order)
	req.RaffleID = uuid.New()
	_, err := env.engine.Allocate(context.Background(), req)
	assertCode(t, err, pkgerrors.CodeNotFound)

	req = allocateReq(order)
	req.OrderID = uuid.New()
	_, err = env.engine.Allocate(context.Background(), req)
	assertCode(t, err, pkgerrors.CodeNotFound)

	req = allocateReq(order)
	req.RaffleID = other.ID
	_, err = env.engine.Allocate(context.Background(), req)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestAllocateRejectsQuantityAboveCap(t *testing.T) {
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, 20, nil)
	order := env.seedOrder(t, raffle.ID, 8, "PAY-BIG")

	_, err := env.engine.Allocate(context.Background(), allocateReq(order))
	assertCode(t, err, pkgerrors.CodeInvalidQuantity)

	if stored := env.reloadOrder(t, order.ID); stored.Status != enums.OrderStatusCreated || len(stored.Tickets) != 0 {
		t.Fatalf("order changed: status=%s tickets=%v", stored.Status, stored.Tickets)
	}
	if updated := env.reloadRaffle(t, raffle.ID); updated.SoldTickets != 0 || updated.Version != raffle.Version {
		t.Fatalf("raffle changed: sold=%d version=%d", updated.SoldTickets, updated.Version)
	}
	if got := env.countRows(t, &models.RaffleTicket{}, "raffle_id = ?", raffle.ID); got != 0 {
		t.Fatalf("expected no ticket rows, got %d", got)
	}
}

func TestAllocateRejectsIncompleteRequest(t *testing.T) {
	env := newTestEnv(t, 0)
	_, err := env.engine.Allocate(context.Background(), Request{RaffleID: uuid.New(), OrderID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestAllocateParallelCallersNeverOverlap(t *testing.T) {
	const buyers, qty = 8, 3
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, buyers*qty, nil)
	orders := make([]*models.Order, buyers)
	for i := range orders {
		orders[i] = env.seedOrder(t, raffle.ID, qty, "PAY-C-"+uuid.NewString())
	}

	results, errs := runConcurrently(env.engine, orders)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("order %d failed: %v", i, err)
		}
	}

	seen := map[int]bool{}
	for _, res := range results {
		for _, n := range res.Tickets {
			if seen[n] {
				t.Fatalf("ticket %d assigned twice", n)
			}
			seen[n] = true
		}
	}
	if len(seen) != buyers*qty {
		t.Fatalf("expected %d tickets assigned, got %d", buyers*qty, len(seen))
	}

	updated := env.reloadRaffle(t, raffle.ID)
	if updated.SoldTickets != buyers*qty || updated.BuyersCount != buyers {
		t.Fatalf("unexpected counts sold=%d buyers=%d", updated.SoldTickets, updated.BuyersCount)
	}
	if got := env.countRows(t, &models.RaffleTicket{}, "raffle_id = ?", raffle.ID); got != int64(buyers*qty) {
		t.Fatalf("expected %d taken rows, got %d", buyers*qty, got)
	}
}

func TestAllocateParallelCallersOneTicketShort(t *testing.T) {
	const buyers, qty = 8, 3
	env := newTestEnv(t, 0)
	raffle := env.seedRaffle(t, buyers*qty-1, nil)
	orders := make([]*models.Order, buyers)
	for i := range orders {
		orders[i] = env.seedOrder(t, raffle.ID, qty, "PAY-S-"+uuid.NewString())
	}

	_, errs := runConcurrently(env.engine, orders)
	failures := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		assertCode(t, err, pkgerrors.CodeInsufficientInventory)
		failures++
	}
	if failures != 1 {
		t.Fatalf("expected exactly one insufficient inventory, got %d", failures)
	}

	updated := env.reloadRaffle(t, raffle.ID)
	if updated.SoldTickets != (buyers-1)*qty {
		t.Fatalf("expected sold %d, got %d", (buyers-1)*qty, updated.SoldTickets)
	}
	if updated.SoldTickets > updated.TotalTickets {
		t.Fatalf("oversold: %d > %d", updated.SoldTickets, updated.TotalTickets)
	}
}

type flakyStore struct {
	store
	advanceConflicts *int32
	insertConflicts  *int32
}

func (f *flakyStore) AdvanceRaffle(ctx context.Context, raffleID uuid.UUID, expectedVersion int64, qty int, now time.Time) (int64, error) {
	if atomic.AddInt32(f.advanceConflicts, -1) >= 0 {
		return 0, nil
	}
	return f.store.AdvanceRaffle(ctx, raffleID, expectedVersion, qty, now)
}

func (f *flakyStore) InsertTickets(ctx context.Context, raffleID, orderID uuid.UUID, numbers []int) error {
	if atomic.AddInt32(f.insertConflicts, -1) >= 0 {
		return &pgconn.PgError{Code: "23505", ConstraintName: "raffle_tickets_pkey"}
	}
	return f.store.InsertTickets(ctx, raffleID, orderID, numbers)
}

func withFlakyStore(engine *Engine, advanceConflicts, insertConflicts int32) {
	engine.repoFactory = func(tx *gorm.DB) store {
		return &flakyStore{
			store:            newRepository(tx),
			advanceConflicts: &advanceConflicts,
			insertConflicts:  &insertConflicts,
		}
	}
}

func TestAllocateRetriesAfterWriteConflict(t *testing.T) {
	env := newTestEnv(t, 5)
	withFlakyStore(env.engine, 2, 1)
	raffle := env.seedRaffle(t, 10, nil)
	order := env.seedOrder(t, raffle.ID, 2, "PAY-R")

	res, err := env.engine.Allocate(context.Background(), allocateReq(order))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if res.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", res.Attempts)
	}
	assertDistinctInRange(t, res.Tickets, 2, 10)

	updated := env.reloadRaffle(t, raffle.ID)
	if updated.SoldTickets != 2 || updated.Version != 1 {
		t.Fatalf("expected a single commit, got sold=%d version=%d", updated.SoldTickets, updated.Version)
	}
	if got := gatherCounter(t, env.registry, "allocation_transaction_retries_total"); got != 3 {
		t.Fatalf("expected 3 retries recorded, got %f", got)
	}
}

func TestAllocateSurfacesTransactionConflictWhenRetriesExhausted(t *testing.T) {
	env := newTestEnv(t, 3)
	withFlakyStore(env.engine, 100, 0)
	raffle := env.seedRaffle(t, 10, nil)
	order := env.seedOrder(t, raffle.ID, 1, "PAY-X")

	_, err := env.engine.Allocate(context.Background(), allocateReq(order))
	assertCode(t, err, pkgerrors.CodeTransactionConflict)
	if !pkgerrors.MetadataFor(pkgerrors.CodeTransactionConflict).Retryable {
		t.Fatalf("transaction conflict must be retryable")
	}

	if stored := env.reloadOrder(t, order.ID); stored.Status != enums.OrderStatusCreated {
		t.Fatalf("order must stay created, got %s", stored.Status)
	}
	if got := gatherCounter(t, env.registry, "allocation_transaction_retries_total"); got != 2 {
		t.Fatalf("expected 2 retries recorded, got %f", got)
	}
}

func runConcurrently(engine *Engine, orders []*models.Order) ([]*Result, []error) {
	results := make([]*Result, len(orders))
	errs := make([]error, len(orders))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, order := range orders {
		wg.Add(1)
		go func(i int, order *models.Order) {
			defer wg.Done()
			<-start
			results[i], errs[i] = engine.Allocate(context.Background(), allocateReq(order))
		}(i, order)
	}
	close(start)
	wg.Wait()
	return results, errs
}

func assertDistinctInRange(t *testing.T, tickets []int, want, total int) {
	t.Helper()
	if len(tickets) != want {
		t.Fatalf("expected %d tickets, got %v", want, tickets)
	}
	seen := map[int]bool{}
	for _, n := range tickets {
		if n < 1 || n > total {
			t.Fatalf("ticket %d outside [1,%d]", n, total)
		}
		if seen[n] {
			t.Fatalf("duplicate ticket %d in %v", n, tickets)
		}
		seen[n] = true
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]int(nil), a...)
	y := append([]int(nil), b...)
	sort.Ints(x)
	sort.Ints(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
