package ingest

import (
	"strings"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/solana"
)

const (
	// PumpFunProgramID is the bonding-curve launch program.
	PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// RaydiumAMMProgramID is the AMM v4 program tokens graduate to.
	RaydiumAMMProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
)

// TrackedPrograms returns the log subscriptions the client maintains.
func TrackedPrograms() []solana.Program {
	return []solana.Program{
		{ID: PumpFunProgramID, Label: "pump.fun"},
		{ID: RaydiumAMMProgramID, Label: "raydium"},
	}
}

// Category is the coarse event class a notification maps to.
type Category int

const (
	CategoryNone Category = iota
	CategoryNewToken
	CategoryTrade
	CategoryGraduation
)

func (c Category) String() string {
	switch c {
	case CategoryNewToken:
		return "new_token"
	case CategoryTrade:
		return "trade"
	case CategoryGraduation:
		return "graduation"
	default:
		return "none"
	}
}

// Classification is the outcome of matching a log notification against the
// tracked programs.
type Classification struct {
	Category Category
	Program  solana.Program
	Side     domain.TradeSide
}

// Classify maps a log notification to a category. Failed transactions are
// dropped before any matching. Program attribution is a substring search
// over the joined log text; instruction names decide the category.
func Classify(n solana.LogNotification) (Classification, bool) {
	if n.Err != nil {
		return Classification{}, false
	}

	joined := strings.Join(n.Logs, "\n")
	lowered := strings.ToLower(joined)

	for _, p := range TrackedPrograms() {
		if !strings.Contains(joined, p.ID) {
			continue
		}
		if cls, ok := classifyProgram(p, lowered); ok {
			return cls, true
		}
	}
	return Classification{}, false
}

func classifyProgram(p solana.Program, lowered string) (Classification, bool) {
	switch p.ID {
	case PumpFunProgramID:
		switch {
		case contains(lowered, "instruction: create", "instruction: initializemint", "initialize_mint"):
			return Classification{Category: CategoryNewToken, Program: p}, true
		case strings.Contains(lowered, "instruction: buy"):
			return Classification{Category: CategoryTrade, Program: p, Side: domain.TradeBuy}, true
		case strings.Contains(lowered, "instruction: sell"):
			return Classification{Category: CategoryTrade, Program: p, Side: domain.TradeSell}, true
		}
	case RaydiumAMMProgramID:
		if contains(lowered, "instruction: initialize2", "init_pc_amount", "initialize pool") {
			return Classification{Category: CategoryGraduation, Program: p}, true
		}
	}
	return Classification{}, false
}

func contains(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
