package bridge

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
)

// Direction tells whether a gateway mints onto the ledger chain or burns from it
type Direction string

const (
	DirectionMint Direction = "mint"
	DirectionBurn Direction = "burn"
)

// EndpointStyle is the shape of one side of a route
type EndpointStyle int

const (
	// StyleDepositAddress is a UTXO source paid to a network-generated address
	StyleDepositAddress EndpointStyle = iota + 1
	// StyleAccount is an account-model source funded by a transfer call
	StyleAccount
	// StyleContract is a call on the ledger contract
	StyleContract
	// StyleAddress is a native-chain recipient address
	StyleAddress
)

func (s EndpointStyle) String() string {
	switch s {
	case StyleDepositAddress:
		return "deposit_address"
	case StyleAccount:
		return "account"
	case StyleContract:
		return "contract"
	case StyleAddress:
		return "address"
	default:
		return "unknown"
	}
}

// Endpoint describes the source or destination of a gateway
type Endpoint struct {
	Chain   string
	Style   EndpointStyle
	Address string // funding account, recipient, or contract address by style
	Method  string // StyleContract only
	Holder  string // StyleContract only: ledger account credited or debited
	Data    []byte // StyleContract source only: encoded call data
	Gas     uint64 // StyleContract source only: gas limit, 0 estimates
}

// DepositAddress is a UTXO source paid to a fresh gateway address
func DepositAddress(chain string) Endpoint {
	return Endpoint{Chain: chain, Style: StyleDepositAddress}
}

// Account is an account-model source funded from account
func Account(chain, account string) Endpoint {
	return Endpoint{Chain: chain, Style: StyleAccount, Address: account}
}

// Contract is a ledger contract call crediting or debiting holder
func Contract(chain, contract, method, holder string) Endpoint {
	return Endpoint{Chain: chain, Style: StyleContract, Address: contract, Method: method, Holder: holder}
}

// WithCall attaches encoded call data to a contract source
func (e Endpoint) WithCall(data []byte, gasLimit uint64) Endpoint {
	e.Data = data
	e.Gas = gasLimit
	return e
}

// Address is a native recipient on chain
func Address(chain, address string) Endpoint {
	return Endpoint{Chain: chain, Style: StyleAddress, Address: address}
}

func (e Endpoint) String() string {
	if e.Style == StyleContract {
		return fmt.Sprintf("%s:%s.%s", e.Chain, e.Address, e.Method)
	}
	if e.Address == "" {
		return fmt.Sprintf("%s:%s", e.Chain, e.Style)
	}
	return fmt.Sprintf("%s:%s", e.Chain, e.Address)
}

// Fees is the fee schedule of a selector at gateway creation
type Fees struct {
	Lock    *big.Int `json:"lock"`    // source-chain fee on mints, smallest units
	Release *big.Int `json:"release"` // native-chain fee on burns, smallest units
	MintBps uint64   `json:"mint"`    // basis points kept by the network on mints
	BurnBps uint64   `json:"burn"`    // basis points kept by the network on burns
}

// InSetup is the in-leg mechanism of a gateway. Exactly one of DepositAddress
// and Call is set.
type InSetup struct {
	Style          EndpointStyle
	DepositAddress string       // StyleDepositAddress
	Call           *FundingCall // StyleAccount and StyleContract
}

// FundingCall is a transaction the pipeline submits to fund the in leg
type FundingCall struct {
	Chain    string
	To       string
	Method   string
	Data     []byte
	GasLimit uint64
}

// Gateway is created once per transfer intent and never changes afterwards
type Gateway struct {
	ID          string
	Asset       asset.Asset
	Direction   Direction
	Source      Endpoint
	Destination Endpoint
	In          InSetup
	Fees        Fees
	CreatedAt   time.Time
}

// Selector names the network route, e.g. "BTC/toEthereum"
func (g *Gateway) Selector() string {
	return selector(g.Asset, g.Direction)
}

// InChain is the chain the in leg is submitted on
func (g *Gateway) InChain() string {
	return g.Source.Chain
}

// OutChain is the chain the out leg is submitted on
func (g *Gateway) OutChain() string {
	return g.Destination.Chain
}

// WatchAddress is the address whose funding events belong to this gateway
func (g *Gateway) WatchAddress() string {
	switch {
	case g.In.DepositAddress != "":
		return g.In.DepositAddress
	case g.In.Call != nil && g.In.Style == StyleAccount:
		return g.In.Call.To
	default:
		return ""
	}
}

// InRequest builds the submission funding amount through this gateway
func (g *Gateway) InRequest(amount *big.Int) common.SubmitRequest {
	switch g.In.Style {
	case StyleDepositAddress:
		return common.TransferRequest(g.In.DepositAddress, amount, "")
	case StyleAccount:
		return common.TransferRequest(g.In.Call.To, amount, g.ID)
	default:
		return common.CallRequest(g.In.Call.To, g.In.Call.Data, nil, g.In.Call.GasLimit)
	}
}

func selector(a asset.Asset, d Direction) string {
	if d == DirectionBurn {
		return a.Symbol + "/fromEthereum"
	}
	return a.Symbol + "/toEthereum"
}

// ConsensusResult is what the network returns once it has processed a transaction
type ConsensusResult struct {
	Hash        string
	NHash       [32]byte
	Signature   []byte
	Amount      *big.Int // minted or released amount after fees
	ReleaseTxID string   // burns: native release transaction, when the network broadcast it
	ReleaseRaw  []byte   // burns: signed release transaction to re-broadcast
}

// network wire types

type feesResponse struct {
	Lock    *hexutil.Big   `json:"lock"`
	Release *hexutil.Big   `json:"release"`
	Mint    hexutil.Uint64 `json:"mint"`
	Burn    hexutil.Uint64 `json:"burn"`
}

// GatewayAddressRequest asks the network for a deposit address bound to a destination
type GatewayAddressRequest struct {
	Selector string `json:"selector"`
	Nonce    string `json:"nonce"`
	To       string `json:"to"`
	Method   string `json:"method"`
	Holder   string `json:"holder"`
	Account  string `json:"account,omitempty"`
}

type gatewayAddressResponse struct {
	GatewayAddress string `json:"gatewayAddress"`
}

// ConsensusRequest hands a confirmed in transaction to the network
type ConsensusRequest struct {
	Selector string       `json:"selector"`
	Nonce    string       `json:"nonce"`
	InChain  string       `json:"inChain"`
	InTxHash string       `json:"inTxHash"`
	InIndex  uint32       `json:"inIndex"`
	Amount   *hexutil.Big `json:"amount"`
	To       string       `json:"to"`
	Method   string       `json:"method,omitempty"`
	Holder   string       `json:"holder,omitempty"`
}

type submitTxResponse struct {
	Hash string `json:"hash"`
}

// Consensus transaction statuses reported by ren_queryTx
const (
	TxStatusConfirming = "confirming"
	TxStatusPending    = "pending"
	TxStatusExecuting  = "executing"
	TxStatusDone       = "done"
	TxStatusReverted   = "reverted"
)

// TxStatus is a ren_queryTx answer
type TxStatus struct {
	Status string        `json:"txStatus"`
	Out    *ConsensusOut `json:"out,omitempty"`
}

// ConsensusOut is the output of a processed consensus transaction
type ConsensusOut struct {
	NHash     hexutil.Bytes `json:"nhash"`
	Signature hexutil.Bytes `json:"sig"`
	Amount    *hexutil.Big  `json:"amount"`
	TxID      string        `json:"txid,omitempty"`
	Raw       hexutil.Bytes `json:"raw,omitempty"`
	Revert    string        `json:"revert,omitempty"`
}
