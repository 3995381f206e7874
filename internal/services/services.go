package services

import (
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lotauction/internal/compliance"
	"lotauction/internal/domain"
	"lotauction/internal/eligibility"
	"lotauction/internal/events"
	"lotauction/internal/governance"
	"lotauction/internal/ledger"
	"lotauction/internal/repos"
)

type Options struct {
	DB       *sqlx.DB
	Ledger   *ledger.Coordinator
	Events   events.Publisher    // nil disables publishing
	Cache    governance.Cache    // nil means a process-local cache
	Clock    domain.Clock        // nil means the system clock
	FeeRate  decimal.Decimal     // platform fee taken at settlement
	Registry compliance.Registry // nil means the built-in rule table
}

// Services is the full set of application services over one database.
type Services struct {
	Lots       *LotService
	Compliance *ComplianceService
	Governance *GovernanceService
	Auctions   *AuctionService
}

func New(o Options) *Services {
	if o.Clock == nil {
		o.Clock = domain.SystemClock{}
	}
	if o.Events == nil {
		o.Events = events.Nop{}
	}

	gov := NewGovernanceService(repos.NewGovernanceRepo(o.DB), governance.NewCachedStore(repos.NewGovernanceRepo(o.DB), o.Cache), o.Clock)
	elig := eligibility.New(eligibility.NewRepoSource(o.DB), o.Clock)

	return &Services{
		Lots:       NewLotService(o.DB, o.Ledger, o.Clock),
		Compliance: NewComplianceService(o.DB, compliance.NewEngine(o.Registry), o.Clock),
		Governance: gov,
		Auctions: NewAuctionService(AuctionDeps{
			DB:          o.DB,
			Eligibility: elig,
			Governance:  governance.NewValidator(gov.Store()),
			Ledger:      o.Ledger,
			Events:      o.Events,
			Clock:       o.Clock,
			FeeRate:     o.FeeRate,
		}),
	}
}

// storageErr passes domain errors through and classifies everything else as internal.
func storageErr(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(op, err)
}

func sameAddress(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }

func strPtr(s string) *string { return &s }
