package ingest_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/ingest"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeRatesBridge(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				if _, err := r.ReadBytes('\n'); err != nil {
					return
				}
				reply := map[string]any{
					"rates": []any{
						map[string]any{"time": 1700000000.0, "open": 2400.0, "high": 2405.0, "low": 2398.0, "close": 2402.0, "tick_volume": 100.0},
						map[string]any{"time": 1700000900.0, "open": 2402.0, "high": 2408.0, "low": 2401.0, "close": 2406.0, "tick_volume": 120.0},
					},
				}
				payload, _ := json.Marshal(reply)
				payload = append(payload, '\n')
				c.Write(payload)
			}(conn)
		}
	}()
	return listener.Addr().String()
}

func TestIngestUniversePersistsCandles(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	defer db.Close()

	addr := fakeRatesBridge(t)
	bridge := broker.New(zap.NewNop(), addr)
	candles := store.NewCandleRepository(db)
	svc := ingest.New(zap.NewNop(), bridge, candles)

	universe := types.Universe{
		Symbols:    []types.UniverseSymbol{{Symbol: "XAUUSD", Weight: 1.0}},
		Timeframes: []string{"M15"},
		MinCandles: 2,
	}

	inserted, err := svc.IngestUniverse(context.Background(), universe)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	stored, err := candles.Recent(context.Background(), "XAUUSD", "M15", 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestIngestUniverseNoBridgeReturnsError(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	defer db.Close()

	svc := ingest.New(zap.NewNop(), nil, store.NewCandleRepository(db))
	_, err = svc.IngestUniverse(context.Background(), types.Universe{})
	require.Error(t, err)
}
