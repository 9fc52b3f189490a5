package dxy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/dxy"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func priceServer(t *testing.T, price float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"price": price, "timestamp": time.Now().Unix()})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshPublishesContext(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "dxy.db"))
	require.NoError(t, err)
	defer db.Close()

	settingsSvc := settings.New(zap.NewNop(), store.NewSettingsRepository(db))
	candles := store.NewCandleRepository(db)

	srv := priceServer(t, 105.5)
	provider := dxy.NewHTTPProvider("primary", srv.URL, "")
	svc := dxy.New(zap.NewNop(), settingsSvc, candles, provider)

	require.NoError(t, svc.Refresh(context.Background()))

	snapshot, ok := svc.Current()
	require.True(t, ok)
	require.True(t, snapshot.CurrentDXY.Equal(decimal.NewFromFloat(105.5)))
	require.Equal(t, types.DXYImpactNeutral, snapshot.Impact)
}

func TestRefreshFallsBackToSecondProvider(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "dxy.db"))
	require.NoError(t, err)
	defer db.Close()

	settingsSvc := settings.New(zap.NewNop(), store.NewSettingsRepository(db))
	candles := store.NewCandleRepository(db)

	dead := dxy.NewHTTPProvider("primary", "http://127.0.0.1:1", "")
	srv := priceServer(t, 104.2)
	fallback := dxy.NewHTTPProvider("fallback", srv.URL, "")
	svc := dxy.New(zap.NewNop(), settingsSvc, candles, dead, fallback)

	require.NoError(t, svc.Refresh(context.Background()))

	snapshot, ok := svc.Current()
	require.True(t, ok)
	require.Equal(t, "fallback", snapshot.Provider)
}

func TestRefreshSkipsWithinInterval(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "dxy.db"))
	require.NoError(t, err)
	defer db.Close()

	settingsSvc := settings.New(zap.NewNop(), store.NewSettingsRepository(db))
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyDXYRefreshSeconds, "3600"))
	candles := store.NewCandleRepository(db)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"price": 106.0})
	}))
	defer srv.Close()

	provider := dxy.NewHTTPProvider("primary", srv.URL, "")
	svc := dxy.New(zap.NewNop(), settingsSvc, candles, provider)

	require.NoError(t, svc.Refresh(context.Background()))
	require.NoError(t, svc.Refresh(context.Background()))
	require.Equal(t, 1, calls)
}
