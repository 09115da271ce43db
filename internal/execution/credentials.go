package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// credentials is the L2 API key triplet returned by /auth/derive-api-key.
type credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

const clobBaseURL = "https://clob.polymarket.com"

// EnsureCredentials derives and caches L2 credentials from the L1 signing
// key the first time they're needed; afterwards it reuses the cached
// triple for the lifetime of the process, per the credential lifecycle
// that trading operations rely on.
func (c *OrderClient) EnsureCredentials(ctx context.Context) error {
	if c.apiKey != "" && c.secret != "" && c.passphrase != "" {
		return nil
	}

	creds, err := c.deriveAPIKey(ctx)
	if err != nil {
		return fmt.Errorf("derive api key: %w", err)
	}

	c.apiKey = creds.APIKey
	c.secret = creds.Secret
	c.passphrase = creds.Passphrase

	c.logger.Info("l2-credentials-derived", zap.String("address", c.address))
	return nil
}

// deriveAPIKey signs the ClobAuth EIP-712 message with the L1 key and
// exchanges it for an L2 API credential triple.
func (c *OrderClient) deriveAPIKey(ctx context.Context) (credentials, error) {
	nonce := 0
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := c.signClobAuth(timestamp, nonce)
	if err != nil {
		return credentials{}, fmt.Errorf("sign clob auth: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clobBaseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return credentials{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_NONCE", strconv.Itoa(nonce))

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return credentials{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return credentials{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return credentials{}, fmt.Errorf("derive-api-key error (status %d): %s", resp.StatusCode, string(body))
	}

	var creds credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return credentials{}, fmt.Errorf("parse response: %w", err)
	}
	return creds, nil
}

// signClobAuth produces the EIP-712 signature required for L1-authenticated
// endpoints (key derivation only — trading itself uses L2 HMAC auth).
func (c *OrderClient) signClobAuth(timestamp string, nonce int) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(big.NewInt(137)),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"address":   c.address,
			"timestamp": timestamp,
			"nonce":     fmt.Sprintf("%d", nonce),
			"message":   "This message attests that I control the given wallet",
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + common.Bytes2Hex(sig), nil
}

// l2Headers builds the HMAC-signed header set for an L2 trading request.
func (c *OrderClient) l2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	payload := timestamp + method + path + body
	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(payload))
	sig := base64.URLEncoding.EncodeToString(h.Sum(nil))

	return map[string]string{
		"POLY_API_KEY":    c.apiKey,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_PASSPHRASE": c.passphrase,
		"POLY_ADDRESS":    c.address,
	}, nil
}

// l2Request performs an L2-authenticated HTTP call and returns the raw body.
func (c *OrderClient) l2Request(ctx context.Context, method, path, body string) ([]byte, int, error) {
	headers, err := c.l2Headers(method, path, body)
	if err != nil {
		return nil, 0, err
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, clobBaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
