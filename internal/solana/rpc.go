package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface used by the resolver and the
// metadata fallback.
type RPCClient interface {
	// GetTransaction retrieves a parsed transaction by signature.
	// Returns nil (no error) if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil (no error) if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// ParsedTransaction represents a jsonParsed getTransaction result.
type ParsedTransaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata including balance diffs.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount carries a token amount in raw and display form.
type UITokenAmount struct {
	Amount   string   `json:"amount"`
	Decimals int      `json:"decimals"`
	UIAmount *float64 `json:"uiAmount"`
}

// TransactionMessage contains account keys and parsed instructions.
type TransactionMessage struct {
	AccountKeys  []AccountKey
	Instructions []ParsedInstruction
}

// AccountKey is one jsonParsed account key entry. The first account key is
// the fee payer.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction is a jsonParsed instruction. Parsed is nil for programs
// the RPC node cannot decode.
type ParsedInstruction struct {
	Program   string           `json:"program"`
	ProgramID string           `json:"programId"`
	Parsed    *InstructionInfo `json:"parsed"`
}

// InstructionInfo is the decoded instruction payload.
type InstructionInfo struct {
	Type string                 `json:"type"`
	Info map[string]interface{} `json:"info"`
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
}
