package terra

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cosmos/cosmos-sdk/client"
	clienttx "github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	cryptocodec "github.com/cosmos/cosmos-sdk/crypto/codec"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultTransferGas is the gas limit of a single bank send
	DefaultTransferGas uint64 = 200_000

	// DefaultTransferFee is the fee paid for a bank send, in uluna
	DefaultTransferFee int64 = 30_000
)

// AccountQuerier returns the packed auth account of an address
type AccountQuerier interface {
	GetAccount(ctx context.Context, address string) (*codectypes.Any, error)
}

// KeySigner signs bank sends with a raw secp256k1 key
type KeySigner struct {
	priv     *secp256k1.PrivKey
	address  string
	chainID  string
	accounts AccountQuerier
	registry codectypes.InterfaceRegistry
	txConfig client.TxConfig
	gasLimit uint64
	fee      sdk.Coins
	log      zerolog.Logger

	sequenceMutex sync.Mutex
	lastSequence  uint64
}

// NewKeySigner creates a signer from a hex encoded private key
func NewKeySigner(hexKey, chainID string, accounts AccountQuerier, log zerolog.Logger) (*KeySigner, error) {
	if chainID == "" {
		return nil, fmt.Errorf("terra chain id is required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account querier is required")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid terra private key: %w", err)
	}
	if len(raw) != secp256k1.PrivKeySize {
		return nil, fmt.Errorf("terra private key must be %d bytes, got %d", secp256k1.PrivKeySize, len(raw))
	}
	priv := &secp256k1.PrivKey{Key: raw}

	address, err := sdk.Bech32ifyAddressBytes(Bech32Prefix, priv.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("failed to derive terra address: %w", err)
	}

	registry, txConfig := newTxConfig()
	return &KeySigner{
		priv:     priv,
		address:  address,
		chainID:  chainID,
		accounts: accounts,
		registry: registry,
		txConfig: txConfig,
		gasLimit: DefaultTransferGas,
		fee:      sdk.NewCoins(sdk.NewInt64Coin(Denom, DefaultTransferFee)),
		log:      log.With().Str("component", "terra_signer").Str("address", address).Logger(),
	}, nil
}

func newTxConfig() (codectypes.InterfaceRegistry, client.TxConfig) {
	interfaceRegistry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(interfaceRegistry)
	cryptocodec.RegisterInterfaces(interfaceRegistry)
	authtypes.RegisterInterfaces(interfaceRegistry)
	banktypes.RegisterInterfaces(interfaceRegistry)

	cdc := codec.NewProtoCodec(interfaceRegistry)
	return interfaceRegistry, authtx.NewTxConfig(cdc, []signing.SignMode{signing.SignMode_SIGN_MODE_DIRECT})
}

// Address implements Signer
func (s *KeySigner) Address() string {
	return s.address
}

// TxConfig returns the config the signer encodes with
func (s *KeySigner) TxConfig() client.TxConfig {
	return s.txConfig
}

// SignTransfer implements Signer
func (s *KeySigner) SignTransfer(ctx context.Context, to string, amount sdk.Coins, memo string) ([]byte, error) {
	s.sequenceMutex.Lock()
	defer s.sequenceMutex.Unlock()

	account, err := s.getAccountInfo(ctx)
	if err != nil {
		return nil, err
	}

	// Always use the latest sequence from chain to recover from any desync
	chainSequence := account.GetSequence()
	if s.lastSequence != chainSequence {
		s.log.Debug().
			Uint64("old_sequence", s.lastSequence).
			Uint64("new_sequence", chainSequence).
			Msg("updating sequence from chain")
		s.lastSequence = chainSequence
	}

	txBuilder := s.txConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(&banktypes.MsgSend{FromAddress: s.address, ToAddress: to, Amount: amount}); err != nil {
		return nil, fmt.Errorf("failed to set messages: %w", err)
	}
	txBuilder.SetMemo(memo)
	txBuilder.SetGasLimit(s.gasLimit)
	txBuilder.SetFeeAmount(s.fee)

	// Set empty signature first to populate SignerInfos
	empty := signing.SignatureV2{
		PubKey:   s.priv.PubKey(),
		Data:     &signing.SingleSignatureData{SignMode: signing.SignMode_SIGN_MODE_DIRECT},
		Sequence: s.lastSequence,
	}
	if err := txBuilder.SetSignatures(empty); err != nil {
		return nil, fmt.Errorf("failed to set signatures: %w", err)
	}

	signerData := authsigning.SignerData{
		Address:       s.address,
		ChainID:       s.chainID,
		AccountNumber: account.GetAccountNumber(),
		Sequence:      s.lastSequence,
		PubKey:        s.priv.PubKey(),
	}
	sig, err := clienttx.SignWithPrivKey(
		ctx,
		signing.SignMode_SIGN_MODE_DIRECT,
		signerData,
		txBuilder,
		s.priv,
		s.txConfig,
		s.lastSequence,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with private key: %w", err)
	}
	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, fmt.Errorf("failed to set final signatures: %w", err)
	}

	txBytes, err := s.txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	s.log.Info().
		Str("to", to).
		Str("amount", amount.String()).
		Uint64("sequence", s.lastSequence).
		Msg("transfer signed")
	return txBytes, nil
}

func (s *KeySigner) getAccountInfo(ctx context.Context) (sdk.AccountI, error) {
	packed, err := s.accounts.GetAccount(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to query account info: %w", err)
	}

	var account sdk.AccountI
	if err := s.registry.UnpackAny(packed, &account); err != nil {
		return nil, fmt.Errorf("failed to unpack account: %w", err)
	}
	return account, nil
}
