// Package ledger is the boundary to the external append-only ledger that holds
// the immutable lot and auction records.
package ledger

import (
	"context"
	"time"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxRejected  TxStatus = "rejected"
	TxUnknown   TxStatus = "unknown"
)

type LotRegistration struct {
	LotID        string `json:"lotId"`
	OwnerAddress string `json:"ownerAddress"`
	Variety      string `json:"variety"`
	Quantity     string `json:"quantity"`
	QualityGrade string `json:"qualityGrade"`
}

type AuctionCreation struct {
	AuctionID    string    `json:"auctionId"`
	LotID        string    `json:"lotId"`
	PassportRef  string    `json:"passportRef"`
	OwnerAddress string    `json:"ownerAddress"`
	ReservePrice string    `json:"reservePrice"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	TemplateID   string    `json:"templateId,omitempty"`
}

type ComplianceFlag struct {
	AuctionRef string `json:"auctionRef"`
	AuctionID  string `json:"auctionId"`
	Passed     bool   `json:"passed"`
}

// Ledger is the external collaborator. Every submit call carries the sequence
// slot (nonce) chosen by the caller and returns once the write is accepted for
// inclusion, which is not the same as final.
type Ledger interface {
	PendingNonce(ctx context.Context, signer string) (uint64, error)
	SubmitLotRegistration(ctx context.Context, signer string, nonce uint64, reg LotRegistration) (txRef string, err error)
	SubmitAuctionCreation(ctx context.Context, signer string, nonce uint64, a AuctionCreation) (txRef string, sequence int64, err error)
	SubmitComplianceFlag(ctx context.Context, signer string, nonce uint64, f ComplianceFlag) (txRef string, err error)
	TxStatus(ctx context.Context, txRef string) (TxStatus, error)
}

// Receipt is what a successful coordinated write returns.
type Receipt struct {
	TxRef    string `json:"txRef"`
	Sequence int64  `json:"sequence,omitempty"`
	Nonce    uint64 `json:"nonce"`
}
