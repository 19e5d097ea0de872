// Package metadata resolves token name/symbol/image from the on-chain
// metadata account. It is the last enrichment fallback: it needs only the
// chain RPC and the metadata URI host, no rate-limited market API.
package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-token-radar/internal/solana"
)

// MetadataProgramID is the Metaplex token metadata program.
const MetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

// TokenMetadata is the resolved on-chain metadata for a mint.
type TokenMetadata struct {
	Name     string
	Symbol   string
	URI      string
	ImageURL string
}

// uriPattern extracts the embedded metadata URI from raw account bytes.
var uriPattern = regexp.MustCompile(`https?://[ -~]+`)

// Resolver reads metadata accounts and fetches their URI JSON.
type Resolver struct {
	rpc    solana.RPCClient
	client *http.Client
}

// NewResolver creates a metadata resolver.
func NewResolver(rpc solana.RPCClient, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{rpc: rpc, client: httpClient}
}

// Resolve derives the metadata account for the mint, parses the embedded
// name/symbol, and fetches the URI JSON for the image. Partial results are
// returned when the URI fetch fails.
func (r *Resolver) Resolve(ctx context.Context, mint string) (*TokenMetadata, error) {
	account, err := MetadataAccount(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata account: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata account: %w", err)
	}
	if info == nil || info.Data == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata account data: %w", err)
	}

	meta := parseMetadataAccount(decoded)
	if meta == nil {
		return nil, nil
	}

	if meta.URI != "" {
		r.fetchURIJSON(ctx, meta)
	}
	return meta, nil
}

// parseMetadataAccount parses a Metaplex MetadataV1 account.
// Layout: key(1) + updateAuthority(32) + mint(32) + name + symbol + uri,
// each string borsh-encoded as 4-byte little-endian length + data.
func parseMetadataAccount(decoded []byte) *TokenMetadata {
	if len(decoded) < 66 {
		return nil
	}
	if decoded[0] != 4 { // MetadataV1 key
		return nil
	}

	offset := 65

	name, offset, ok := readBorshString(decoded, offset, 100)
	if !ok {
		return nil
	}
	symbol, _, ok := readBorshString(decoded, offset, 20)
	if !ok {
		return nil
	}

	meta := &TokenMetadata{
		Name:   name,
		Symbol: symbol,
	}

	// The URI field follows, but padding and trailing creator data make a
	// plain scan more robust than strict borsh decoding here.
	if m := uriPattern.Find(decoded); m != nil {
		meta.URI = strings.TrimRight(string(m), "\x00")
	}
	return meta
}

// readBorshString reads a length-prefixed string, rejecting absurd lengths.
func readBorshString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", 0, false
	}
	strLen := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if strLen > maxLen || offset+strLen > len(data) {
		return "", 0, false
	}
	s := strings.TrimRight(string(data[offset:offset+strLen]), "\x00")
	return s, offset + strLen, true
}

// uriContent is the JSON document the metadata URI points to.
type uriContent struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// fetchURIJSON fills in image (and any missing name/symbol) from the URI
// document. Failures leave the on-chain fields untouched.
func (r *Resolver) fetchURIJSON(ctx context.Context, meta *TokenMetadata) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URI, nil)
	if err != nil {
		return
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return
	}

	var content uriContent
	if err := json.Unmarshal(body, &content); err != nil {
		return
	}

	meta.ImageURL = content.Image
	if meta.Name == "" {
		meta.Name = content.Name
	}
	if meta.Symbol == "" {
		meta.Symbol = content.Symbol
	}
}

// MetadataAccount derives the metadata account address for a mint.
func MetadataAccount(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	programBytes, err := base58.Decode(MetadataProgramID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	seeds := [][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}

	addr := derivePDA(seeds, programBytes)
	if addr == "" {
		return "", fmt.Errorf("no valid bump seed for mint %s", mint)
	}
	return addr, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// sha256(seeds || bump || programID || "ProgramDerivedAddress") for the
// highest bump that lands off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}
	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
