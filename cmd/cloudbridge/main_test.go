package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_CONFIG", "/nonexistent/path/config.yaml")
	t.Setenv("CLOUDBRIDGE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingCredentials verifies run refuses to start without cloud
// credentials.
func TestRun_MissingCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("CLOUDBRIDGE_CONFIG", configPath)
	t.Setenv("CLOUDBRIDGE_ENV_FILE", filepath.Join(tmpDir, "missing.env"))
	t.Setenv("CLOUDBRIDGE_CLOUD_TOKEN", "")
	t.Setenv("CLOUDBRIDGE_CLOUD_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without cloud credentials")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("CLOUDBRIDGE_CONFIG", "/custom/config.yaml")
	if got := getConfigPath(); got != "/custom/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

func TestGetEnvPath(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_ENV_FILE", "")
	if got := getEnvPath(); got != defaultEnvPath {
		t.Errorf("getEnvPath() = %q, want %q", got, defaultEnvPath)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := loadEnvFile(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("loadEnvFile(missing) = %v, want nil", err)
	}

	path := filepath.Join(dir, "test.env")
	content := "CLOUDBRIDGE_TEST_TOKEN=from-file\nCLOUDBRIDGE_TEST_KEEP=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	t.Setenv("CLOUDBRIDGE_TEST_KEEP", "from-env")
	t.Setenv("CLOUDBRIDGE_TEST_TOKEN", "")
	os.Unsetenv("CLOUDBRIDGE_TEST_TOKEN")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() = %v", err)
	}
	if got := os.Getenv("CLOUDBRIDGE_TEST_TOKEN"); got != "from-file" {
		t.Errorf("token = %q, want from-file", got)
	}
	if got := os.Getenv("CLOUDBRIDGE_TEST_KEEP"); got != "from-env" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestSensorTransforms(t *testing.T) {
	got := sensorTransforms(config.SensorsConfig{Transforms: map[string]config.TransformConfig{
		"voltage": {Scale: 1, Offset: -0.5},
	}})

	if tr := got[cloud.FieldVoltage]; tr.Offset != -0.5 {
		t.Errorf("voltage transform = %+v", tr)
	}
	if tr := got[cloud.FieldElectricCurrent]; tr.Scale != 0.1 {
		t.Errorf("electricCurrent transform = %+v, want built-in default", tr)
	}
}

// --- discovery ---

func openRepo(t *testing.T) *device.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "test.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return device.NewSQLiteRepository(db.DB)
}

func cloudServer(t *testing.T, status int, body string) *cloud.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.1/devices" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck // test server
	}))
	t.Cleanup(srv.Close)

	c, err := cloud.New(cloud.Options{BaseURL: srv.URL, Credentials: cloud.Credentials{Token: "t", Secret: "s"}})
	if err != nil {
		t.Fatalf("cloud.New() error = %v", err)
	}
	return c
}

const deviceListBody = `{"statusCode":100,"message":"success","body":{
  "deviceList":[
    {"deviceId":"L1","deviceName":"Kitchen","deviceType":"Ceiling Light","hubDeviceId":"H1"},
    {"deviceId":"P1","deviceName":"Desk","deviceType":"Plug Mini (US)"},
    {"deviceId":"B1","deviceName":"Blind","deviceType":"Blind Tilt"}
  ],
  "infraredRemoteList":[
    {"deviceId":"R1","deviceName":"TV","remoteType":"TV","hubDeviceId":"H1"}
  ]}}`

func TestDiscoverDevices_StoresInventory(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	if err := repo.Upsert(ctx, device.Device{ID: "OLD", Name: "Gone", Kind: device.KindLight, VendorType: "Color Bulb"}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	devices, err := discoverDevices(ctx, cloudServer(t, http.StatusOK, deviceListBody), repo, logging.Discard())
	if err != nil {
		t.Fatalf("discoverDevices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("devices = %d, want 3 (blind skipped)", len(devices))
	}

	stored, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	ids := make(map[string]bool)
	for _, d := range stored {
		ids[d.ID] = true
	}
	if ids["OLD"] || !ids["L1"] || !ids["P1"] || !ids["R1"] {
		t.Errorf("stored inventory = %v", ids)
	}
}

func TestDiscoverDevices_FallsBackToInventory(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	// empty inventory: nothing to fall back to
	if _, err := discoverDevices(ctx, cloudServer(t, http.StatusBadGateway, "down"), repo, logging.Discard()); err == nil {
		t.Fatal("discoverDevices() with no inventory = nil, want error")
	}

	if err := repo.Upsert(ctx, device.Device{ID: "L1", Name: "Kitchen", Kind: device.KindLight, VendorType: "Ceiling Light"}); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	devices, err := discoverDevices(ctx, cloudServer(t, http.StatusBadGateway, "down"), repo, logging.Discard())
	if err != nil {
		t.Fatalf("discoverDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "L1" {
		t.Errorf("devices = %+v, want stored L1", devices)
	}
}

func TestDiscoverDevices_AuthFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	if err := repo.Upsert(ctx, device.Device{ID: "L1", Name: "Kitchen", Kind: device.KindLight, VendorType: "Ceiling Light"}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	_, err := discoverDevices(ctx, cloudServer(t, http.StatusUnauthorized, "unauthorized"), repo, logging.Discard())
	if !errors.Is(err, cloud.ErrAuth) {
		t.Errorf("discoverDevices() error = %v, want ErrAuth", err)
	}
}

// --- history pruning ---

type fakePruner struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (f *fakePruner) PruneHistory(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return 3, f.err
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPruneHistory_RunsAtStartupAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePruner{err: errors.New("locked")}

	done := make(chan struct{})
	go func() {
		pruneHistory(ctx, p, 48*time.Hour, logging.Discard())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.count() != 1 {
		t.Fatalf("prune calls = %d, want 1", p.count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruneHistory did not return after cancel")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls[0] != 48*time.Hour {
		t.Errorf("olderThan = %v, want 48h", p.calls[0])
	}
}
