// Package chainrpc is a thin Filecoin JSON-RPC client used by the
// verification flow.
package chainrpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"
)

// cid is the JSON encoding of a Filecoin content identifier.
type cid struct {
	Root string `json:"/"`
}

// Message is the subset of a chain message the verification job reads.
type Message struct {
	To     string `json:"To"`
	Value  string `json:"Value"` // attoFIL decimal string
	Params string `json:"Params"`
	Nonce  uint64 `json:"Nonce"`
}

type Client struct {
	rpc *rpc.Client
}

func Dial(url string) (*Client, error) {
	c, err := rpc.Dial(url)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// ChainGetMessage resolves a message by transaction CID.
func (c *Client) ChainGetMessage(ctx context.Context, txCid string) (*Message, error) {
	var msg Message
	if err := c.rpc.CallContext(ctx, &msg, "Filecoin.ChainGetMessage", cid{Root: txCid}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GasEstimateMessageGas fills in gas fields for an unsigned message.
func (c *Client) GasEstimateMessageGas(ctx context.Context, message interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.rpc.CallContext(ctx, &out, "Filecoin.GasEstimateMessageGas",
		message, map[string]string{"MaxFee": "0"}, []interface{}{})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MpoolGetNonce returns the next nonce for an address.
func (c *Client) MpoolGetNonce(ctx context.Context, address string) (uint64, error) {
	var nonce uint64
	err := c.rpc.CallContext(ctx, &nonce, "Filecoin.MpoolGetNonce", address)
	return nonce, err
}

// WalletBalance returns an address balance in attoFIL.
func (c *Client) WalletBalance(ctx context.Context, address string) (string, error) {
	var balance string
	err := c.rpc.CallContext(ctx, &balance, "Filecoin.WalletBalance", address)
	return balance, err
}

// WalletSignMessage signs an unsigned message with the node-held key for
// address and returns the signed message ready for MpoolPush.
func (c *Client) WalletSignMessage(ctx context.Context, address string, message interface{}) (json.RawMessage, error) {
	var signed json.RawMessage
	if err := c.rpc.CallContext(ctx, &signed, "Filecoin.WalletSignMessage", address, message); err != nil {
		return nil, err
	}
	return signed, nil
}

// MpoolPush broadcasts a signed message and returns its CID.
func (c *Client) MpoolPush(ctx context.Context, signedMessage interface{}) (string, error) {
	var out cid
	if err := c.rpc.CallContext(ctx, &out, "Filecoin.MpoolPush", signedMessage); err != nil {
		return "", err
	}
	return out.Root, nil
}
