package cvm

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/poc"
)

// TappdClient talks to the in-guest attestation worker over the same PRPC
// framing as the pod service.
type TappdClient struct {
	rpc *prpcClient
}

// NewTappdClient creates a client for the attestation worker at baseURL.
func NewTappdClient(baseURL string, httpClient *http.Client) *TappdClient {
	return &TappdClient{rpc: newPRPCClient(baseURL, httpClient)}
}

func (c *TappdClient) TdxQuote(ctx context.Context, args container.TdxQuoteArgs) (container.TdxQuoteResponse, error) {
	var resp container.TdxQuoteResponse
	if err := c.rpc.call(ctx, "TdxQuote", args, &resp); err != nil {
		return container.TdxQuoteResponse{}, err
	}
	return resp, nil
}

func (c *TappdClient) DeriveKey(ctx context.Context, args container.DeriveKeyArgs) (container.DeriveKeyResponse, error) {
	var resp container.DeriveKeyResponse
	if err := c.rpc.call(ctx, "DeriveKey", args, &resp); err != nil {
		return container.DeriveKeyResponse{}, err
	}
	return resp, nil
}

func (c *TappdClient) Info(ctx context.Context) (container.WorkerInfo, error) {
	var resp container.WorkerInfo
	if err := c.rpc.call(ctx, "Info", nil, &resp); err != nil {
		return container.WorkerInfo{}, err
	}
	return resp, nil
}

// SimulatedTappd answers the attestation surface without TEE hardware. The
// local backend and tests use it; quotes are keccak digests of the report
// data rather than hardware-backed evidence.
type SimulatedTappd struct{}

// NewSimulatedTappd creates the simulator.
func NewSimulatedTappd() *SimulatedTappd {
	return &SimulatedTappd{}
}

func (s *SimulatedTappd) TdxQuote(ctx context.Context, args container.TdxQuoteArgs) (container.TdxQuoteResponse, error) {
	return container.TdxQuoteResponse{
		Quote:         hex.EncodeToString(poc.Keccak256(args.ReportData)),
		EventLog:      "",
		HashAlgorithm: args.HashAlgorithm,
		Prefix:        args.Prefix,
	}, nil
}

func (s *SimulatedTappd) DeriveKey(ctx context.Context, args container.DeriveKeyArgs) (container.DeriveKeyResponse, error) {
	return container.DeriveKeyResponse{
		Key: hex.EncodeToString(poc.Keccak256([]byte(args.Path))),
	}, nil
}

func (s *SimulatedTappd) Info(ctx context.Context) (container.WorkerInfo, error) {
	return container.WorkerInfo{
		AppID:      "simulated",
		InstanceID: "simulated",
		AppName:    "mpnode-simulated-worker",
	}, nil
}
