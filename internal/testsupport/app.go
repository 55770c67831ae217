package testsupport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"visitorinsights/internal"
	"visitorinsights/internal/config"
	"visitorinsights/internal/database"
	"visitorinsights/internal/displayforce"
)

// TestNow is the mock clock's initial time in test apps.
var TestNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// FakeDevices serves a fixed device list.
type FakeDevices struct {
	mu      sync.Mutex
	Devices []displayforce.Device
	Err     error
}

// ListDevices implements http.DeviceLister.
func (f *FakeDevices) ListDevices(context.Context) ([]displayforce.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Devices, f.Err
}

// TestApp is a fully wired application backed by an in-memory database, a
// fake event source and a mock clock.
type TestApp struct {
	*internal.Application
	DB      *gorm.DB
	Clock   *quartz.Mock
	Fetcher *FakeFetcher
	Devices *FakeDevices
}

// NewTestApp builds a TestApp. Each configure func may adjust the test
// configuration before the app is built.
func NewTestApp(t *testing.T, configure ...func(*config.Config)) *TestApp {
	t.Helper()

	cfg := SetupTestConfig(t)
	for _, fn := range configure {
		fn(cfg)
	}

	logger := GetLogger()
	db := SetupTestDB(t)
	clock := quartz.NewMock(t)
	clock.Set(TestNow)
	fetcher := NewFakeFetcher()
	devices := &FakeDevices{}

	app, err := internal.NewAppWithConfig(cfg,
		internal.WithLogger(logger),
		internal.WithClock(clock),
		internal.WithDBManager(database.NewDBManagerWithConnection(db, logger)),
		internal.WithFetcher(fetcher),
		internal.WithDeviceLister(devices),
	)
	require.NoError(t, err)

	return &TestApp{
		Application: app,
		DB:          db,
		Clock:       clock,
		Fetcher:     fetcher,
		Devices:     devices,
	}
}

// Do sends a request through the fiber app and returns the status code and
// body. A non-nil body is encoded as JSON.
func (a *TestApp) Do(t *testing.T, method, target string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Server.Test(req, 30000)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}
