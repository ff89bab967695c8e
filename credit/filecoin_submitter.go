package credit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/filpass_credits/chainrpc"
	"github.com/filpass_credits/filpass"
)

// InvokeContractMethod is the FRC-42 method number for calling an EVM actor.
const InvokeContractMethod = 3844450837

// filecoinAPI is the node surface the Filecoin submit path consumes.
type filecoinAPI interface {
	WalletBalance(ctx context.Context, address string) (string, error)
	MpoolGetNonce(ctx context.Context, address string) (uint64, error)
	GasEstimateMessageGas(ctx context.Context, message interface{}) (map[string]interface{}, error)
	WalletSignMessage(ctx context.Context, address string, message interface{}) (json.RawMessage, error)
	MpoolPush(ctx context.Context, signedMessage interface{}) (string, error)
}

var _ filecoinAPI = (*chainrpc.Client)(nil)

// FilecoinSubmitter submits withdrawAmount calls as native Filecoin messages
// through a node that holds the system wallet key. It is the submit path for
// f-address wallets, where EIP-155 signing does not apply.
type FilecoinSubmitter struct {
	api      filecoinAPI
	from     string
	contract string
	abi      abi.ABI
}

func NewFilecoinSubmitter(api filecoinAPI, from, contract string) (*FilecoinSubmitter, error) {
	parsed, err := abi.JSON(strings.NewReader(withdrawABIJSON))
	if err != nil {
		return nil, err
	}
	return &FilecoinSubmitter{
		api:      api,
		from:     from,
		contract: contract,
		abi:      parsed,
	}, nil
}

// SubmitTicket packs the decoded token, has the node estimate, sign and push
// the message, and returns the message CID.
func (s *FilecoinSubmitter) SubmitTicket(ctx context.Context, token filpass.DecodedToken) (string, error) {
	data, err := packWithdraw(s.abi, token)
	if err != nil {
		return "", err
	}

	balance, err := s.api.WalletBalance(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("wallet balance: %w", err)
	}
	if balance == "" || balance == "0" {
		return "", fmt.Errorf("system wallet %s has no funds for gas", s.from)
	}

	nonce, err := s.api.MpoolGetNonce(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("mpool nonce: %w", err)
	}

	message := map[string]interface{}{
		"To":     s.contract,
		"From":   s.from,
		"Nonce":  nonce,
		"Value":  "0",
		"Method": InvokeContractMethod,
		"Params": base64.StdEncoding.EncodeToString(data),
	}
	estimated, err := s.api.GasEstimateMessageGas(ctx, message)
	if err != nil {
		return "", fmt.Errorf("gas estimate: %w", err)
	}

	signed, err := s.api.WalletSignMessage(ctx, s.from, estimated)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	txCid, err := s.api.MpoolPush(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("mpool push: %w", err)
	}
	return txCid, nil
}
