package orders

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/internal/allocation"
	"github.com/angelmondragon/rifa-backend/internal/raffles"
	dbpkg "github.com/angelmondragon/rifa-backend/pkg/db"
	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
)

type fakeGateway struct {
	mu             sync.Mutex
	authorizeRef   string
	authorizeErr   error
	captureStatus  string
	captureErr     error
	authorizeCalls int
	captureCalls   int
	lastAuthorize  AuthorizeRequest
}

func (g *fakeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeCalls++
	g.lastAuthorize = req
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	ref := g.authorizeRef
	if ref == "" {
		ref = "PP-" + req.OrderID.String()
	}
	return &AuthorizeResult{PaymentRef: ref, ApproveURL: "https://paypal.test/approve/" + ref}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, paymentRef string) (*GatewayCapture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	status := g.captureStatus
	if status == "" {
		status = "COMPLETED"
	}
	return &GatewayCapture{PaymentRef: paymentRef, Status: status}, nil
}

func (g *fakeGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorizeCalls, g.captureCalls
}

var errGatewayDown = errors.New("gateway unavailable")

type ordersEnv struct {
	db       *gorm.DB
	gateway  *fakeGateway
	intake   *Intake
	capturer *Capturer
	query    *Query
	repo     Repository
}

func setupOrdersEnv(t *testing.T) *ordersEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")+"?_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Raffle{}, &models.RaffleTicket{}, &models.Order{}, &models.OutboxEvent{}))

	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	client := dbpkg.NewFromConn(db)
	publisher := outbox.NewService(outbox.NewRepository(db), logg)
	repo := NewRepository(db)
	raffleRepo := raffles.NewRepository(db)
	gateway := &fakeGateway{}

	engine, err := allocation.NewEngine(allocation.EngineParams{
		DB:          client,
		Outbox:      publisher,
		Logger:      logg,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	intake, err := NewIntake(IntakeParams{
		DB:      client,
		Raffles: raffleRepo,
		Orders:  repo,
		Gateway: gateway,
		Outbox:  publisher,
		Logger:  logg,
	})
	require.NoError(t, err)

	capturer, err := NewCapturer(CapturerParams{
		DB:        client,
		Orders:    repo,
		Gateway:   gateway,
		Allocator: engine,
		Outbox:    publisher,
		Logger:    logg,
	})
	require.NoError(t, err)

	query, err := NewQuery(repo, raffleRepo)
	require.NoError(t, err)

	return &ordersEnv{
		db:       db,
		gateway:  gateway,
		intake:   intake,
		capturer: capturer,
		query:    query,
		repo:     repo,
	}
}

func (e *ordersEnv) seedRaffle(t *testing.T, total, sold int, endsAt *time.Time) *models.Raffle {
	t.Helper()
	raffle := &models.Raffle{
		Name:         "Moto 2026",
		TotalTickets: total,
		SoldTickets:  sold,
		TicketPrice:  decimal.RequireFromString("35.50"),
		Currency:     enums.CurrencyMXN,
		EndsAt:       endsAt,
	}
	require.NoError(t, e.db.Create(raffle).Error)
	return raffle
}

func (e *ordersEnv) seedOrder(t *testing.T, raffleID uuid.UUID, qty int, paymentRef string) *models.Order {
	t.Helper()
	order := &models.Order{
		RaffleID:     raffleID,
		BuyerName:    "Lupita",
		BuyerContact: "5512345678",
		Qty:          qty,
		Status:       enums.OrderStatusCreated,
		PaymentRef:   paymentRef,
		AmountDue:    decimal.RequireFromString("35.50").Mul(decimal.NewFromInt(int64(qty))),
		Currency:     enums.CurrencyMXN,
	}
	require.NoError(t, e.db.Create(order).Error)
	return order
}

func (e *ordersEnv) reloadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, e.db.First(&order, "id = ?", id).Error)
	return order
}

func (e *ordersEnv) countEvents(t *testing.T, eventType enums.OutboxEventType, aggregateID uuid.UUID) int64 {
	t.Helper()
	count, err := outbox.NewRepository(e.db).CountForAggregate(e.db, string(eventType), aggregateID)
	require.NoError(t, err)
	return count
}
