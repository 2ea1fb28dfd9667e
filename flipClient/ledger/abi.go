package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// flipABI is the interface of the Flip escrow contract
const flipABI = `[
  {"type":"function","name":"getBalance","stateMutability":"view",
   "inputs":[{"name":"_address","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[{"name":"btc","type":"uint256"},{"name":"luna","type":"uint256"}]}]},
  {"type":"function","name":"getTotalBalance","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"tuple","components":[{"name":"btc","type":"uint256"},{"name":"luna","type":"uint256"}]}]},
  {"type":"function","name":"getBtcBalance","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getGames","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"tuple[]","components":[{"name":"initiator","type":"address"},{"name":"amount","type":"uint256"},{"name":"symbol","type":"string"}]}]},
  {"type":"function","name":"openGame","stateMutability":"payable",
   "inputs":[{"name":"_symbol","type":"string"},{"name":"_amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"acceptGame","stateMutability":"payable",
   "inputs":[{"name":"_id","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"depositBTC","stateMutability":"nonpayable",
   "inputs":[{"name":"_address","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_nHash","type":"bytes32"},{"name":"_sig","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"depositLUNA","stateMutability":"nonpayable",
   "inputs":[{"name":"_address","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_nHash","type":"bytes32"},{"name":"_sig","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"_symbol","type":"string"},{"name":"_address","type":"address"},{"name":"_to","type":"bytes"},{"name":"_amount","type":"uint256"}],
   "outputs":[]},
  {"type":"event","name":"Deposit","anonymous":false,
   "inputs":[{"name":"_address","type":"address","indexed":true},{"name":"_symbol","type":"string","indexed":false},{"name":"_amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"Result","anonymous":false,
   "inputs":[{"name":"_id","type":"uint256","indexed":true},{"name":"_winner","type":"address","indexed":false},{"name":"_symbol","type":"string","indexed":false},{"name":"_amount","type":"uint256","indexed":false}]}
]`

// Contract method and event names
const (
	MethodGetBalance      = "getBalance"
	MethodGetTotalBalance = "getTotalBalance"
	MethodGetBtcBalance   = "getBtcBalance"
	MethodGetGames        = "getGames"
	MethodOpenGame        = "openGame"
	MethodAcceptGame      = "acceptGame"
	MethodWithdraw        = "withdraw"

	EventDeposit = "Deposit"
	EventResult  = "Result"
)

// ParseABI returns the parsed contract interface
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(flipABI))
}
