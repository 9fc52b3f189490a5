package execution_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/execution"
	"github.com/atlas-desktop/aurum-control-plane/internal/governance"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBridge is a minimal TCP stub speaking the newline-delimited JSON
// protocol, configurable to return a canned reply or sleep past a deadline.
func fakeBridge(t *testing.T, reply map[string]any, delay time.Duration) string {
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
				if delay > 0 {
					time.Sleep(delay)
				}
				payload, _ := json.Marshal(reply)
				payload = append(payload, '\n')
				c.Write(payload)
			}(conn)
		}
	}()
	return listener.Addr().String()
}

func newTestHarness(t *testing.T, bridgeAddr string) (*execution.Executor, *settings.Service) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settingsRepo := store.NewSettingsRepository(db)
	settingsSvc := settings.New(zap.NewNop(), settingsRepo)
	events := store.NewExecutionEventRepository(db)
	predictive := store.NewPredictiveReportRepository(db)
	gov := governance.New(zap.NewNop(), settingsSvc, events, predictive)

	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyTradingMode, "live"))
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyExecutionBridge, "mt5_zmq"))

	var bridge *broker.Client
	if bridgeAddr != "" {
		bridge = broker.New(zap.NewNop(), bridgeAddr)
	}

	return execution.New(zap.NewNop(), settingsSvc, events, gov, bridge), settingsSvc
}

func TestExecuteSimulatedWhenNotLive(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	defer db.Close()

	settingsSvc := settings.New(zap.NewNop(), store.NewSettingsRepository(db))
	events := store.NewExecutionEventRepository(db)
	gov := governance.New(zap.NewNop(), settingsSvc, events, store.NewPredictiveReportRepository(db))
	exec := execution.New(zap.NewNop(), settingsSvc, events, gov, nil)

	event, err := exec.Execute(context.Background(), execution.Request{
		Source: types.SourceWebhook,
		UserID: "u1",
		Symbol: "XAUUSD",
		Side:   types.OrderSideBuy,
		Volume: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, types.ExecStatusSimulated, event.Status)
}

func TestExecuteLiveSuccess(t *testing.T) {
	addr := fakeBridge(t, map[string]any{"ticket": "1001", "fill_price": 2400.12}, 0)
	exec, _ := newTestHarness(t, addr)

	event, err := exec.Execute(context.Background(), execution.Request{
		Source:         types.SourceWebhook,
		UserID:         "u1",
		Symbol:         "XAUUSD",
		Side:           types.OrderSideBuy,
		Volume:         decimal.NewFromInt(1),
		RequestedPrice: decimal.NewFromFloat(2400.10),
	})
	require.NoError(t, err)
	require.Equal(t, types.ExecStatusSuccess, event.Status)
	require.Equal(t, "1001", event.Ticket)
	require.NotNil(t, event.Slippage)
	require.True(t, event.Slippage.Equal(decimal.NewFromFloat(0.02)))
}

func TestExecuteLiveBlockedOnSlippage(t *testing.T) {
	addr := fakeBridge(t, map[string]any{"ticket": "1002", "fill_price": 2500.00}, 0)
	exec, settingsSvc := newTestHarness(t, addr)
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyExecMaxSlippage, "1.0"))

	event, err := exec.Execute(context.Background(), execution.Request{
		Source:         types.SourceWebhook,
		UserID:         "u1",
		Symbol:         "XAUUSD",
		Side:           types.OrderSideBuy,
		Volume:         decimal.NewFromInt(1),
		RequestedPrice: decimal.NewFromFloat(2400.00),
	})
	require.NoError(t, err)
	require.Equal(t, types.ExecStatusBlocked, event.Status)
}

func TestExecuteLiveBlockedOnLatency(t *testing.T) {
	addr := fakeBridge(t, map[string]any{"ticket": "1003", "fill_price": 2400.0}, 50*time.Millisecond)
	exec, settingsSvc := newTestHarness(t, addr)
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyExecMaxLatencyMs, "5"))
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyMT5OrderRetries, "1"))

	event, err := exec.Execute(context.Background(), execution.Request{
		Source: types.SourceWebhook,
		UserID: "u1",
		Symbol: "XAUUSD",
		Side:   types.OrderSideBuy,
		Volume: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, types.ExecStatusBlocked, event.Status)
}

func TestRunTWAPStopsOnFirstFailure(t *testing.T) {
	addr := fakeBridge(t, map[string]any{"error": "requote"}, 0)
	exec, settingsSvc := newTestHarness(t, addr)
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyMT5OrderRetries, "1"))

	events, err := exec.RunTWAP(context.Background(), execution.TWAPPlan{
		Request: execution.Request{
			Source: types.SourceWebhook,
			UserID: "u1",
			Symbol: "XAUUSD",
			Side:   types.OrderSideBuy,
			Volume: decimal.NewFromInt(4),
		},
		Slices:   4,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, types.ExecStatusError, events[0].Status)
}
