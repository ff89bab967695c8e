package credit

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filpass_credits/filpass"
)

// Minimal ABI for the contract's withdrawAmount entry point.
const withdrawABIJSON = `[{"inputs":[{"components":[
{"internalType":"string","name":"iss","type":"string"},
{"internalType":"string","name":"jti","type":"string"},
{"internalType":"uint256","name":"exp","type":"uint256"},
{"internalType":"uint256","name":"iat","type":"uint256"},
{"internalType":"string","name":"ticket_type","type":"string"},
{"internalType":"string","name":"ticket_version","type":"string"},
{"internalType":"address","name":"funder","type":"address"},
{"internalType":"address","name":"sub","type":"address"},
{"internalType":"address","name":"aud","type":"address"},
{"internalType":"uint256","name":"ticket_lane","type":"uint256"},
{"internalType":"uint256","name":"lane_total_amount","type":"uint256"},
{"internalType":"uint256","name":"lane_guaranteed_amount","type":"uint256"},
{"internalType":"uint256","name":"lane_guaranteed_until","type":"uint256"}
],"internalType":"struct FilPass.DecodedToken","name":"decodedToken","type":"tuple"}],
"name":"withdrawAmount","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const withdrawGasLimit = uint64(300000)

// EthSubmitter signs and broadcasts withdrawAmount calls with the system
// wallet.
type EthSubmitter struct {
	client     *ethclient.Client
	contract   common.Address
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
	abi        abi.ABI
}

func NewEthSubmitter(rpcURL, contractAddress, privateKeyHex string, chainID int64) (*EthSubmitter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid system wallet key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(withdrawABIJSON))
	if err != nil {
		return nil, err
	}
	return &EthSubmitter{
		client:     client,
		contract:   common.HexToAddress(contractAddress),
		privateKey: privateKey,
		chainID:    big.NewInt(chainID),
		abi:        parsed,
	}, nil
}

// packWithdraw encodes a withdrawAmount call for the decoded token. The
// packed tuple's field order must match the ABI components.
func packWithdraw(parsed abi.ABI, token filpass.DecodedToken) ([]byte, error) {
	arg := struct {
		Iss                  string
		Jti                  string
		Exp                  *big.Int
		Iat                  *big.Int
		TicketType           string
		TicketVersion        string
		Funder               common.Address
		Sub                  common.Address
		Aud                  common.Address
		TicketLane           *big.Int
		LaneTotalAmount      *big.Int
		LaneGuaranteedAmount *big.Int
		LaneGuaranteedUntil  *big.Int
	}{
		Iss:                  token.Iss,
		Jti:                  token.Jti,
		Exp:                  big.NewInt(token.Exp),
		Iat:                  big.NewInt(token.Iat),
		TicketType:           token.TicketType,
		TicketVersion:        token.TicketVersion,
		Funder:               token.Funder,
		Sub:                  token.Sub,
		Aud:                  token.Aud,
		TicketLane:           big.NewInt(int64(token.TicketLane)),
		LaneTotalAmount:      token.LaneTotalAmount,
		LaneGuaranteedAmount: token.LaneGuaranteedAmount,
		LaneGuaranteedUntil:  big.NewInt(token.LaneGuaranteedUntil),
	}

	data, err := parsed.Pack("withdrawAmount", arg)
	if err != nil {
		return nil, fmt.Errorf("pack withdrawAmount: %w", err)
	}
	return data, nil
}

// SubmitTicket packs the decoded token, signs the call and broadcasts it.
func (s *EthSubmitter) SubmitTicket(ctx context.Context, token filpass.DecodedToken) (string, error) {
	data, err := packWithdraw(s.abi, token)
	if err != nil {
		return "", err
	}

	from := crypto.PubkeyToAddress(s.privateKey.PublicKey)
	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", err
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, s.contract, new(big.Int), withdrawGasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return "", err
	}
	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}
