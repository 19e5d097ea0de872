package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/resolver"
	"solana-token-radar/internal/solana"
)

func pumpLogs(instruction string) []string {
	return []string{
		"Program " + PumpFunProgramID + " invoke [1]",
		"Program log: Instruction: " + instruction,
		"Program " + PumpFunProgramID + " success",
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		notif    solana.LogNotification
		category Category
		side     domain.TradeSide
		ok       bool
	}{
		{
			name:     "pump create is new token",
			notif:    solana.LogNotification{Signature: "s1", Logs: pumpLogs("Create")},
			category: CategoryNewToken,
			ok:       true,
		},
		{
			name:     "pump buy is trade",
			notif:    solana.LogNotification{Signature: "s2", Logs: pumpLogs("Buy")},
			category: CategoryTrade,
			side:     domain.TradeBuy,
			ok:       true,
		},
		{
			name:     "pump sell is trade",
			notif:    solana.LogNotification{Signature: "s3", Logs: pumpLogs("Sell")},
			category: CategoryTrade,
			side:     domain.TradeSell,
			ok:       true,
		},
		{
			name: "raydium initialize2 is graduation",
			notif: solana.LogNotification{Signature: "s4", Logs: []string{
				"Program " + RaydiumAMMProgramID + " invoke [1]",
				"Program log: Instruction: Initialize2",
			}},
			category: CategoryGraduation,
			ok:       true,
		},
		{
			name: "failed transaction is dropped",
			notif: solana.LogNotification{
				Signature: "s5",
				Logs:      pumpLogs("Create"),
				Err:       map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			},
			ok: false,
		},
		{
			name: "untracked program is ignored",
			notif: solana.LogNotification{Signature: "s6", Logs: []string{
				"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
				"Program log: Instruction: Buy",
			}},
			ok: false,
		},
		{
			name: "tracked program with unknown instruction is ignored",
			notif: solana.LogNotification{Signature: "s7", Logs: []string{
				"Program " + PumpFunProgramID + " invoke [1]",
				"Program log: Instruction: Withdraw",
			}},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, ok := Classify(tt.notif)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.category, cls.Category)
			assert.Equal(t, tt.side, cls.Side)
		})
	}
}

type fixedResolver struct {
	details *resolver.TxDetails
	calls   int
}

func (f *fixedResolver) Resolve(ctx context.Context, signature string) *resolver.TxDetails {
	f.calls++
	if f.details == nil {
		return nil
	}
	d := *f.details
	d.Signature = signature
	return &d
}

func TestProjectTrade(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cls := Classification{Category: CategoryTrade, Side: domain.TradeSell}
	details := &resolver.TxDetails{
		Signature:   "sig",
		Mint:        "Mint",
		Actor:       "Trader",
		SolAmount:   1.25,
		TokenAmount: 900,
	}

	ev, ok := project(cls, details, ts)
	require.True(t, ok)
	require.Equal(t, domain.EventTrade, ev.Kind)
	require.NotNil(t, ev.Trade)
	assert.Equal(t, domain.TradeSell, ev.Trade.Side)
	assert.Equal(t, "Trader", ev.Trade.Trader)
	assert.Equal(t, 1.25, ev.Trade.SolAmount)
	assert.Equal(t, ts, ev.Trade.Timestamp)
}

func TestProjectNewTokenCarriesInitialLiquidity(t *testing.T) {
	cls := Classification{Category: CategoryNewToken, Program: solana.Program{ID: PumpFunProgramID, Label: "pump.fun"}}
	details := &resolver.TxDetails{Signature: "sig", Mint: "Mint", Actor: "Creator", SolAmount: 2}

	ev, ok := project(cls, details, time.Now())
	require.True(t, ok)
	require.NotNil(t, ev.NewToken)
	assert.Equal(t, "Creator", ev.NewToken.Creator)
	assert.Equal(t, 2.0, ev.NewToken.InitialLiquidity)
}

func TestProjectGraduationUsesProgramLabel(t *testing.T) {
	cls := Classification{Category: CategoryGraduation, Program: solana.Program{ID: RaydiumAMMProgramID, Label: "raydium"}}
	details := &resolver.TxDetails{Signature: "sig", Mint: "Mint"}

	ev, ok := project(cls, details, time.Now())
	require.True(t, ok)
	require.NotNil(t, ev.Graduation)
	assert.Equal(t, "raydium", ev.Graduation.DexID)
}
