package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// Config configures the settlement client's gas and safety behavior.
type Config struct {
	RPCURL               string
	PrivateKeyHex        string
	GasPriceSafetyFactor float64       // multiplies SuggestGasPrice; default 1.5
	ApprovalGasLimit     uint64        // capped gas for approvals; default 100000
	GasEstimateMarginPct float64       // extra margin over estimated gas for split/merge; default 0.20
	TxTimeout            time.Duration // per-transaction confirmation wait; default 120s
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.GasPriceSafetyFactor <= 0 {
		out.GasPriceSafetyFactor = 1.5
	}
	if out.ApprovalGasLimit == 0 {
		out.ApprovalGasLimit = 100000
	}
	if out.GasEstimateMarginPct <= 0 {
		out.GasEstimateMarginPct = 0.20
	}
	if out.TxTimeout <= 0 {
		out.TxTimeout = 120 * time.Second
	}
	return out
}

// Client performs CTF split/merge/redeem and approval operations.
type Client struct {
	cfg        Config
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger

	erc20ABI    abi.ABI
	erc1155ABI  abi.ABI
	splitABI    abi.ABI
	mergeABI    abi.ABI
	redeemABI   abi.ABI
}

// ReadySuggestion explains what a caller must do before CTF operations will succeed.
type ReadySuggestion struct {
	Kind    string // "bridge-usdc", "fund-gas", "approve-erc20", "approve-erc1155"
	Message string
}

// ReadyStatus is the result of CheckReadyForCTF.
type ReadyStatus struct {
	USDCEBalance     *big.Int
	NativeUSDCBalance *big.Int
	MaticBalance     *big.Int
	Ready            bool
	Suggestion       *ReadySuggestion
}

// NewClient parses the signing key and pre-compiles the ABIs used for every
// CTF write operation.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("settlement: rpcURL required")
	}
	if logger == nil {
		return nil, fmt.Errorf("settlement: logger required")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse private key: %w", err)
	}
	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("settlement: cast public key")
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse erc20 abi: %w", err)
	}
	erc1155, err := abi.JSON(strings.NewReader(erc1155ApprovalABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse erc1155 abi: %w", err)
	}
	split, err := abi.JSON(strings.NewReader(splitPositionABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse split abi: %w", err)
	}
	merge, err := abi.JSON(strings.NewReader(mergePositionsABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse merge abi: %w", err)
	}
	redeem, err := abi.JSON(strings.NewReader(redeemPositionsABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse redeem abi: %w", err)
	}

	return &Client{
		cfg:        cfg,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*pub),
		logger:     logger,
		erc20ABI:   erc20,
		erc1155ABI: erc1155,
		splitABI:   split,
		mergeABI:   merge,
		redeemABI:  redeem,
	}, nil
}

// Address returns the signer's on-chain address.
func (c *Client) Address() common.Address { return c.address }

func (c *Client) dial(ctx context.Context) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("settlement: dial rpc: %w", err)
	}
	return client, nil
}

// Split converts `amount` (6-decimal USDC units) of collateral into a full
// set of YES+NO conditional tokens for conditionID.
func (c *Client) Split(ctx context.Context, conditionID [32]byte, amount *big.Int, isNegRisk bool) (txHash string, err error) {
	SettlementOpsTotal.WithLabelValues("split").Inc()
	partition := []*big.Int{new(big.Int).SetUint64(types.IndexSetYes), new(big.Int).SetUint64(types.IndexSetNo)}

	data, err := c.splitABI.Pack("splitPosition", common.HexToAddress(PolygonUSDC), [32]byte{}, conditionID, partition, amount)
	if err != nil {
		return "", fmt.Errorf("settlement: pack split: %w", err)
	}

	target := common.HexToAddress(ctfWriteTarget(isNegRisk))
	return c.sendEstimated(ctx, target, data, "split")
}

// Merge recombines a matched pair of YES+NO tokens back into collateral,
// realizing $1 per pair. mergeByTokenIds skips the preflight balance check
// the teacher CLI performed — the caller already verified balances.
func (c *Client) Merge(ctx context.Context, conditionID [32]byte, amount *big.Int, isNegRisk bool) (txHash string, err error) {
	SettlementOpsTotal.WithLabelValues("merge").Inc()
	partition := []*big.Int{new(big.Int).SetUint64(types.IndexSetYes), new(big.Int).SetUint64(types.IndexSetNo)}

	data, err := c.mergeABI.Pack("mergePositions", common.HexToAddress(PolygonUSDC), [32]byte{}, conditionID, partition, amount)
	if err != nil {
		return "", fmt.Errorf("settlement: pack merge: %w", err)
	}

	target := common.HexToAddress(ctfWriteTarget(isNegRisk))
	return c.sendEstimated(ctx, target, data, "merge")
}

// MergeByTokenIDs is the variant used by the rebalancer, which already knows
// both leg balances from its own bookkeeping and does not re-derive them.
func (c *Client) MergeByTokenIDs(ctx context.Context, conditionID [32]byte, amount *big.Int, isNegRisk bool) (string, error) {
	return c.Merge(ctx, conditionID, amount, isNegRisk)
}

// Redeem claims collateral for winning positions after market resolution.
func (c *Client) Redeem(ctx context.Context, conditionID [32]byte, isNegRisk bool) (txHash string, err error) {
	SettlementOpsTotal.WithLabelValues("redeem").Inc()
	indexSets := []*big.Int{new(big.Int).SetUint64(types.IndexSetYes), new(big.Int).SetUint64(types.IndexSetNo)}

	data, err := c.redeemABI.Pack("redeemPositions", common.HexToAddress(PolygonUSDC), [32]byte{}, conditionID, indexSets)
	if err != nil {
		return "", fmt.Errorf("settlement: pack redeem: %w", err)
	}

	target := common.HexToAddress(ctfWriteTarget(isNegRisk))
	return c.sendEstimated(ctx, target, data, "redeem")
}

// ctfWriteTarget returns the CTF contract itself; split/merge/redeem always
// go against the shared conditional-tokens contract regardless of which
// exchange will later clear the resulting tokens.
func ctfWriteTarget(_ bool) string { return PolygonCTF }

// GetPositionBalance reads the ERC1155 balance for a derived position.
func (c *Client) GetPositionBalance(ctx context.Context, positionID *big.Int) (*big.Int, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	data, err := c.erc1155ABI.Pack("balanceOf", c.address, positionID)
	if err != nil {
		return nil, fmt.Errorf("settlement: pack balanceOf: %w", err)
	}

	ctfAddr := common.HexToAddress(PolygonCTF)
	result, err := client.CallContract(ctx, geth.CallMsg{To: &ctfAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement: call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// ApproveErc20 grants an exchange unlimited USDC allowance. amount may be
// nil to approve the max uint256.
func (c *Client) ApproveErc20(ctx context.Context, spender common.Address, amount *big.Int) (txHash string, err error) {
	SettlementOpsTotal.WithLabelValues("approve_erc20").Inc()
	if amount == nil {
		amount = maxUint256()
	}
	data, err := c.erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return "", fmt.Errorf("settlement: pack approve: %w", err)
	}
	return c.sendCapped(ctx, common.HexToAddress(PolygonUSDC), data, c.cfg.ApprovalGasLimit, "approve_erc20")
}

// SetApprovalForAll1155 grants an operator (exchange or neg-risk adapter)
// the right to move the caller's conditional tokens.
func (c *Client) SetApprovalForAll1155(ctx context.Context, operator common.Address) (txHash string, err error) {
	SettlementOpsTotal.WithLabelValues("approve_erc1155").Inc()
	data, err := c.erc1155ABI.Pack("setApprovalForAll", operator, true)
	if err != nil {
		return "", fmt.Errorf("settlement: pack setApprovalForAll: %w", err)
	}
	return c.sendCapped(ctx, common.HexToAddress(PolygonCTF), data, c.cfg.ApprovalGasLimit, "approve_erc1155")
}

// CheckReadyForCTF reports whether the signer holds sufficient allowances,
// approvals and balances across both the standard and neg-risk exchanges to
// trade any binary market. minAmount is the minimum bridged USDC the caller
// intends to trade, in 6-decimal units.
func (c *Client) CheckReadyForCTF(ctx context.Context, minAmount *big.Int) (*ReadyStatus, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	maticBalance, err := client.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement: matic balance: %w", err)
	}

	usdcBalance, err := c.erc20Balance(ctx, client, common.HexToAddress(PolygonUSDC))
	if err != nil {
		return nil, fmt.Errorf("settlement: usdc balance: %w", err)
	}

	status := &ReadyStatus{
		USDCEBalance:      usdcBalance,
		NativeUSDCBalance: big.NewInt(0), // native (non-bridged) USDC has no ERC20 presence to probe cheaply
		MaticBalance:      maticBalance,
	}

	if maticBalance.Sign() <= 0 {
		status.Suggestion = &ReadySuggestion{Kind: "fund-gas", Message: "wallet holds no native MATIC for gas"}
		return status, nil
	}
	if usdcBalance.Cmp(minAmount) < 0 {
		status.Suggestion = &ReadySuggestion{
			Kind:    "bridge-usdc",
			Message: "bridged USDC.e balance is below the requested trade amount; native (non-bridged) USDC cannot be used by the CTF contracts",
		}
		return status, nil
	}

	for _, exchange := range []string{PolygonCTFExchange, PolygonNegRiskExchange} {
		allowance, err := c.erc20Allowance(ctx, client, common.HexToAddress(PolygonUSDC), common.HexToAddress(exchange))
		if err != nil {
			return nil, fmt.Errorf("settlement: allowance for %s: %w", exchange, err)
		}
		if allowance.Sign() <= 0 {
			status.Suggestion = &ReadySuggestion{Kind: "approve-erc20", Message: fmt.Sprintf("USDC allowance for %s is zero", exchange)}
			return status, nil
		}
	}

	for _, operator := range append(operatorsFor(false), operatorsFor(true)...) {
		approved, err := c.isApprovedForAll(ctx, client, common.HexToAddress(operator))
		if err != nil {
			return nil, fmt.Errorf("settlement: isApprovedForAll for %s: %w", operator, err)
		}
		if !approved {
			status.Suggestion = &ReadySuggestion{Kind: "approve-erc1155", Message: fmt.Sprintf("conditional-token operator approval missing for %s", operator)}
			return status, nil
		}
	}

	status.Ready = true
	return status, nil
}

func (c *Client) erc20Balance(ctx context.Context, client *ethclient.Client, token common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", c.address)
	if err != nil {
		return nil, err
	}
	result, err := client.CallContract(ctx, geth.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

func (c *Client) erc20Allowance(ctx context.Context, client *ethclient.Client, token, spender common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("allowance", c.address, spender)
	if err != nil {
		return nil, err
	}
	result, err := client.CallContract(ctx, geth.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

func (c *Client) isApprovedForAll(ctx context.Context, client *ethclient.Client, operator common.Address) (bool, error) {
	data, err := c.erc1155ABI.Pack("isApprovedForAll", c.address, operator)
	if err != nil {
		return false, err
	}
	ctfAddr := common.HexToAddress(PolygonCTF)
	result, err := client.CallContract(ctx, geth.CallMsg{To: &ctfAddr, Data: data}, nil)
	if err != nil {
		return false, err
	}
	var approved bool
	if err := c.erc1155ABI.UnpackIntoInterface(&approved, "isApprovedForAll", result); err != nil {
		return false, err
	}
	return approved, nil
}

// sendEstimated estimates gas for a write, adds the configured margin, and
// sends. Used for split/merge/redeem whose cost varies with contract state.
func (c *Client) sendEstimated(ctx context.Context, to common.Address, data []byte, op string) (string, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	estimated, err := client.EstimateGas(ctx, geth.CallMsg{From: c.address, To: &to, Data: data})
	if err != nil {
		return "", &SettlementError{Op: op, Reason: err.Error()}
	}
	gasLimit := estimated + estimated*uint64(c.cfg.GasEstimateMarginPct*100)/100

	return c.send(ctx, client, to, data, gasLimit, op)
}

// sendCapped sends a write with a fixed, pre-known gas limit (used for
// approvals, whose cost does not depend on caller-specific state).
func (c *Client) sendCapped(ctx context.Context, to common.Address, data []byte, gasLimit uint64, op string) (string, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	return c.send(ctx, client, to, data, gasLimit, op)
}

func (c *Client) send(ctx context.Context, client *ethclient.Client, to common.Address, data []byte, gasLimit uint64, op string) (string, error) {
	nonce, err := client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("settlement: nonce: %w", err)
	}

	suggestedGasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("settlement: suggest gas price: %w", err)
	}
	gasPrice := applySafetyFactor(suggestedGasPrice, c.cfg.GasPriceSafetyFactor)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("settlement: chain id: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("settlement: sign tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		GasCostWei.WithLabelValues(op, "send_failed").Add(0)
		return "", fmt.Errorf("settlement: send tx: %w", err)
	}

	txHash := signedTx.Hash()
	c.logger.Info("settlement-tx-sent", zap.String("op", op), zap.String("tx-hash", txHash.Hex()), zap.Uint64("gas-limit", gasLimit))

	receipt, err := c.waitForReceipt(ctx, client, txHash)
	if err != nil {
		return txHash.Hex(), fmt.Errorf("settlement: await receipt: %w", err)
	}

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	GasCostWei.WithLabelValues(op, statusLabel(receipt.Status)).Add(weiToFloat(gasCost))

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return txHash.Hex(), &SettlementError{Op: op, Reason: "transaction reverted", TxHash: txHash.Hex()}
	}

	return txHash.Hex(), nil
}

func (c *Client) waitForReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(c.cfg.TxTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("timeout waiting for receipt")
}

func applySafetyFactor(gasPrice *big.Int, factor float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(factor))
	result, _ := scaled.Int(nil)
	return result
}

func maxUint256() *big.Int {
	max := new(big.Int)
	max.SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	return max
}

func statusLabel(status uint64) string {
	if status == ethtypes.ReceiptStatusSuccessful {
		return "success"
	}
	return "reverted"
}

func weiToFloat(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	v, _ := f.Float64()
	return v
}

// SettlementError surfaces a revert reason or estimation failure verbatim,
// per the contract that a failed approval must not consume the retry budget
// of unrelated approvals — each operation fails independently.
type SettlementError struct {
	Op     string
	Reason string
	TxHash string
}

func (e *SettlementError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("settlement %s failed (tx %s): %s", e.Op, e.TxHash, e.Reason)
	}
	return fmt.Sprintf("settlement %s failed: %s", e.Op, e.Reason)
}
