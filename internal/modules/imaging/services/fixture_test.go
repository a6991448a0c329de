package services

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/upload"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/usage"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/repositories"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/database"
)

var pngB64 = base64.StdEncoding.EncodeToString([]byte("fake-png"))

// fakeProvider returns canned images or errors and remembers its calls.
type fakeProvider struct {
	mu       sync.Mutex
	images   []imagegen.Image
	err      error
	block    bool
	generate []imagegen.GenerateParams
	edits    []imagegen.EditParams
}

func (p *fakeProvider) respond(ctx context.Context) ([]imagegen.Image, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.images, p.err
}

func (p *fakeProvider) Generate(ctx context.Context, params imagegen.GenerateParams) ([]imagegen.Image, error) {
	p.mu.Lock()
	p.generate = append(p.generate, params)
	p.mu.Unlock()
	return p.respond(ctx)
}

func (p *fakeProvider) Edit(ctx context.Context, params imagegen.EditParams) ([]imagegen.Image, error) {
	p.mu.Lock()
	p.edits = append(p.edits, params)
	p.mu.Unlock()
	return p.respond(ctx)
}

func (p *fakeProvider) GetProviderName() string { return "fake" }

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.generate) + len(p.edits)
}

// failingStorage rejects every upload.
type failingStorage struct{}

func (failingStorage) Upload(ctx context.Context, file io.Reader, options *upload.UploadOptions) (*upload.UploadResult, error) {
	return nil, errors.New("bucket unavailable")
}
func (failingStorage) Delete(ctx context.Context, objectPath string) error { return nil }
func (failingStorage) GetURL(objectPath string) string                   { return "" }
func (failingStorage) GetProviderName() string                           { return "failing" }

// refundBreaker fails refunds while letting debits through.
type refundBreaker struct {
	credits.Store
	broken atomic.Bool
}

func (s *refundBreaker) Credit(ctx context.Context, req credits.CreditRequest) (credits.Result, error) {
	if req.Kind == credits.KindRefund && s.broken.Load() {
		return credits.Result{}, errors.New("connection reset")
	}
	return s.Store.Credit(ctx, req)
}

type fixture struct {
	db          *gorm.DB
	store       *refundBreaker
	ledger      *credits.Ledger
	provider    *fakeProvider
	dispatcher  *jobs.Dispatcher
	usage       *usage.Service
	generations repositories.GenerationRepo
	plans       repositories.PlanRepo
	subs        repositories.SubscriptionRepo
	images      *ImageService
	billing     *BillingService
}

func newFixture(t *testing.T, storage upload.Provider) *fixture {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormStore := credits.NewGormStore(db.GORM)
	require.NoError(t, gormStore.AutoMigrate())
	require.NoError(t, db.GORM.AutoMigrate(&models.Generation{}, &models.BillingPlan{}, &models.Subscription{}))

	f := &fixture{db: db.GORM, provider: &fakeProvider{images: []imagegen.Image{{B64JSON: pngB64}}}}
	f.store = &refundBreaker{Store: gormStore}
	f.ledger = credits.NewLedger(f.store, credits.WithRefundTimeout(time.Second))
	f.dispatcher = jobs.NewDispatcher(jobs.Config{Name: "test", Concurrency: 1, QueueSize: 16})
	t.Cleanup(f.dispatcher.Stop)

	f.usage = usage.NewService(db.GORM)
	require.NoError(t, f.usage.AutoMigrate())
	f.generations = repositories.NewGenerationRepo(db.GORM)
	f.plans = repositories.NewPlanRepo(db.GORM)
	f.subs = repositories.NewSubscriptionRepo(db.GORM)

	var storageSvc *upload.Service
	if storage != nil {
		storageSvc = upload.NewService(storage, "imaginario")
	}

	cfg := DefaultImageConfig()
	cfg.GenerateTimeout = 200 * time.Millisecond
	cfg.EditTimeout = 200 * time.Millisecond

	f.images = NewImageService(f.ledger, credits.DefaultPolicy(), f.provider, storageSvc, f.generations,
		usage.NewRecorder(f.usage, f.dispatcher), f.dispatcher, cfg)
	f.billing = NewBillingService(f.ledger, credits.DefaultPolicy(), f.plans, f.subs, f.usage)
	return f
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.ledger.Grant(context.Background(), credits.CreditRequest{UserID: userID, Amount: amount, Kind: credits.KindGrant})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) usageLogs(t *testing.T, userID string) []usage.UsageLog {
	t.Helper()
	f.dispatcher.Flush()
	res, err := f.usage.GetLogs(context.Background(), usage.UsageFilter{UserID: userID})
	require.NoError(t, err)
	return res.Logs
}
