package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"visitorinsights/internal/config"
	"visitorinsights/internal/database"
	"visitorinsights/internal/displayforce"
	"visitorinsights/internal/users"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// SetupTestDB creates a test database with every model migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by root test
// name so subtests share it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// One connection keeps every statement on the same shared-cache handle
	// and serialises writers.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// SetupTestConfig forces the test environment for code that reads the
// global configuration.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("INSIGHTS_ENV", config.Test)
	t.Setenv("INSIGHTS_LOGS_DIR", "")
	t.Setenv("INSIGHTS_JOBS_ENABLED", "false")
	t.Setenv("INSIGHTS_STORAGE_PATH", t.TempDir())
	config.Reset()
	t.Cleanup(config.Reset)
	return config.GetConfig()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser registers a user and fails the test on error.
func CreateTestUser(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()
	user, err := users.Register(db, email, password)
	require.NoError(t, err)
	return user
}

// VisitorAt builds an API event detected at ts.
func VisitorAt(id string, ts time.Time, sex int, age float64) displayforce.Visitor {
	raw := fmt.Sprintf(`{"visitor_id":%q,"start":%q,"sex":%d,"age":%v}`,
		id, ts.UTC().Format(time.RFC3339), sex, age)
	var v displayforce.Visitor
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic(err)
	}
	return v
}

// FetchCall records one FakeFetcher call.
type FetchCall struct {
	Day     string
	StoreID string
}

// FakeFetcher serves canned events per day and records every call. It is
// safe for concurrent use.
type FakeFetcher struct {
	mu     sync.Mutex
	events map[string][]displayforce.Visitor
	errs   map[string]error
	calls  []FetchCall

	// Block, when set, is received from before answering.
	Block chan struct{}
}

// NewFakeFetcher creates an empty FakeFetcher.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		events: make(map[string][]displayforce.Visitor),
		errs:   make(map[string]error),
	}
}

// SetDay sets the events returned for day.
func (f *FakeFetcher) SetDay(day string, events ...displayforce.Visitor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[day] = events
}

// FailDay makes every fetch of day return err.
func (f *FakeFetcher) FailDay(day string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[day] = err
}

// FetchDay implements ingestion.Fetcher.
func (f *FakeFetcher) FetchDay(ctx context.Context, day, storeID string) ([]displayforce.Visitor, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FetchCall{Day: day, StoreID: storeID})
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[day]; err != nil {
		return nil, err
	}
	return append([]displayforce.Visitor(nil), f.events[day]...), nil
}

// Calls returns a copy of the recorded calls.
func (f *FakeFetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

// CallCount returns the number of recorded calls.
func (f *FakeFetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallsFor counts the calls for day.
func (f *FakeFetcher) CallsFor(day string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Day == day {
			n++
		}
	}
	return n
}
