package metadata

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/solana"
)

// fakeRPC serves canned account info.
type fakeRPC struct {
	accounts map[string]*solana.AccountInfo
}

func (f *fakeRPC) GetTransaction(context.Context, string) (*solana.ParsedTransaction, error) {
	return nil, nil
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	return f.accounts[pubkey], nil
}

// buildMetadataAccount assembles a MetadataV1 account blob.
func buildMetadataAccount(name, symbol, uri string) []byte {
	data := make([]byte, 65)
	data[0] = 4 // MetadataV1 key

	appendBorshString := func(s string, pad int) {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(pad))
		data = append(data, lenBuf[:]...)
		padded := make([]byte, pad)
		copy(padded, s)
		data = append(data, padded...)
	}

	appendBorshString(name, 32)
	appendBorshString(symbol, 10)
	appendBorshString(uri, 200)
	return data
}

func TestParseMetadataAccount(t *testing.T) {
	blob := buildMetadataAccount("My Token", "MYT", "https://example.com/meta.json")

	meta := parseMetadataAccount(blob)
	require.NotNil(t, meta)
	assert.Equal(t, "My Token", meta.Name)
	assert.Equal(t, "MYT", meta.Symbol)
	assert.Equal(t, "https://example.com/meta.json", meta.URI)
}

func TestParseMetadataAccount_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", make([]byte, 10)},
		{"wrong key", append([]byte{1}, make([]byte, 100)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, parseMetadataAccount(tt.data))
		})
	}
}

func TestMetadataAccount_Deterministic(t *testing.T) {
	mint := "So11111111111111111111111111111111111111112"

	a1, err := MetadataAccount(mint)
	require.NoError(t, err)
	a2, err := MetadataAccount(mint)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEmpty(t, a1)
	assert.NotEqual(t, mint, a1)
}

func TestResolver_ResolveWithURIFetch(t *testing.T) {
	uriServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"name":   "My Token",
			"symbol": "MYT",
			"image":  "https://cdn.example.com/token.png",
		})
	}))
	defer uriServer.Close()

	mint := "So11111111111111111111111111111111111111112"
	account, err := MetadataAccount(mint)
	require.NoError(t, err)

	blob := buildMetadataAccount("My Token", "MYT", uriServer.URL)
	rpc := &fakeRPC{accounts: map[string]*solana.AccountInfo{
		account: {Data: base64.StdEncoding.EncodeToString(blob)},
	}}

	resolver := NewResolver(rpc, nil)
	meta, err := resolver.Resolve(context.Background(), mint)
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, "My Token", meta.Name)
	assert.Equal(t, "MYT", meta.Symbol)
	assert.Equal(t, "https://cdn.example.com/token.png", meta.ImageURL)
}

func TestResolver_ResolveMissingAccount(t *testing.T) {
	resolver := NewResolver(&fakeRPC{accounts: map[string]*solana.AccountInfo{}}, nil)

	meta, err := resolver.Resolve(context.Background(), "So11111111111111111111111111111111111111112")
	require.NoError(t, err)
	assert.Nil(t, meta)
}
