package container

import "context"

// TdxQuoteArgs requests an attestation quote over report data.
type TdxQuoteArgs struct {
	ReportData    []byte `json:"report_data"`
	HashAlgorithm string `json:"hash_algorithm"`
	Prefix        string `json:"prefix,omitempty"`
}

// TdxQuoteResponse is the attestation blob returned by the worker.
type TdxQuoteResponse struct {
	Quote         string `json:"quote"`
	EventLog      string `json:"event_log"`
	HashAlgorithm string `json:"hash_algorithm"`
	Prefix        string `json:"prefix"`
}

// DeriveKeyArgs requests a key derived inside the worker.
type DeriveKeyArgs struct {
	Path    string `json:"path"`
	Subject string `json:"subject,omitempty"`
}

// DeriveKeyResponse carries the derived key material.
type DeriveKeyResponse struct {
	Key              string   `json:"key"`
	CertificateChain []string `json:"certificate_chain,omitempty"`
}

// WorkerInfo describes the attestation worker.
type WorkerInfo struct {
	AppID           string `json:"app_id"`
	InstanceID      string `json:"instance_id"`
	AppCert         string `json:"app_cert,omitempty"`
	TCBInfo         string `json:"tcb_info,omitempty"`
	AppName         string `json:"app_name"`
	DeviceID        string `json:"device_id,omitempty"`
	MrAggregated    string `json:"mr_aggregated,omitempty"`
	OsImageHash     string `json:"os_image_hash,omitempty"`
	KeyProviderInfo string `json:"key_provider_info,omitempty"`
	ComposeHash     string `json:"compose_hash,omitempty"`
}

// AttestationClient exposes the TEE attestation surface. The confidential-VM
// backend talks to the in-guest worker; the local backend answers with a
// simulator.
type AttestationClient interface {
	TdxQuote(ctx context.Context, args TdxQuoteArgs) (TdxQuoteResponse, error)
	DeriveKey(ctx context.Context, args DeriveKeyArgs) (DeriveKeyResponse, error)
	Info(ctx context.Context) (WorkerInfo, error)
}
