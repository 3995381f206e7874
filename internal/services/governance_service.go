package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	"lotauction/internal/governance"
	"lotauction/internal/repos"
)

// GovernanceService owns the settings singleton and the template catalogue.
// Every write invalidates the matching cache entry.
type GovernanceService struct {
	repo  *repos.GovernanceRepo
	store *governance.CachedStore
	clock domain.Clock
}

func NewGovernanceService(repo *repos.GovernanceRepo, store *governance.CachedStore, clock domain.Clock) *GovernanceService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &GovernanceService{repo: repo, store: store, clock: clock}
}

// Store is the cached read side shared with the validator.
func (s *GovernanceService) Store() *governance.CachedStore { return s.store }

func (s *GovernanceService) Settings(ctx context.Context) (domain.GovernanceSettings, error) {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return domain.GovernanceSettings{}, storageErr("load governance settings", err)
	}
	return st, nil
}

type SettingsInput struct {
	AllowedDurationsHours   []int
	MinReservePrice         decimal.Decimal
	MaxReservePrice         decimal.Decimal
	DefaultBidIncrement     decimal.Decimal
	DefaultRequiresApproval bool
}

func (s *GovernanceService) UpdateSettings(ctx context.Context, in SettingsInput) (domain.GovernanceSettings, error) {
	var reasons []string
	if len(in.AllowedDurationsHours) == 0 {
		reasons = append(reasons, "allowedDurationsHours must not be empty")
	}
	for _, h := range in.AllowedDurationsHours {
		if h <= 0 {
			reasons = append(reasons, "allowedDurationsHours must all be positive")
			break
		}
	}
	if !in.MinReservePrice.IsPositive() {
		reasons = append(reasons, "minReservePrice must be positive")
	}
	if in.MaxReservePrice.LessThan(in.MinReservePrice) {
		reasons = append(reasons, "maxReservePrice must not be below minReservePrice")
	}
	if !in.DefaultBidIncrement.IsPositive() {
		reasons = append(reasons, "defaultBidIncrement must be positive")
	}
	if len(reasons) > 0 {
		return domain.GovernanceSettings{}, domain.ValidationReasons("invalid governance settings", reasons)
	}

	durations := dedupeSorted(in.AllowedDurationsHours)
	st := domain.GovernanceSettings{
		AllowedDurationsHours:   durations,
		MinReservePrice:         in.MinReservePrice,
		MaxReservePrice:         in.MaxReservePrice,
		DefaultBidIncrement:     in.DefaultBidIncrement,
		DefaultRequiresApproval: in.DefaultRequiresApproval,
		UpdatedAt:               s.clock.Now(),
	}
	if err := s.repo.SaveSettings(ctx, st); err != nil {
		return domain.GovernanceSettings{}, storageErr("save governance settings", err)
	}
	s.store.InvalidateSettings(ctx)
	return st, nil
}

func (s *GovernanceService) Templates(ctx context.Context) ([]domain.AuctionTemplate, error) {
	out, err := s.repo.Templates(ctx)
	if err != nil {
		return nil, storageErr("list templates", err)
	}
	return out, nil
}

func (s *GovernanceService) Template(ctx context.Context, id string) (domain.AuctionTemplate, error) {
	t, err := s.store.Template(ctx, id)
	if err != nil {
		return domain.AuctionTemplate{}, storageErr("load template", err)
	}
	return t, nil
}

type TemplateInput struct {
	Name             string
	MinDurationHours int
	MaxDurationHours int
	MaxReservePrice  *decimal.Decimal
	BidIncrement     decimal.Decimal
	RequiresApproval bool
	Active           bool
}

func (in TemplateInput) validate() error {
	var reasons []string
	if strings.TrimSpace(in.Name) == "" {
		reasons = append(reasons, "name is required")
	}
	if in.MinDurationHours <= 0 {
		reasons = append(reasons, "minDurationHours must be positive")
	}
	if in.MaxDurationHours < in.MinDurationHours {
		reasons = append(reasons, "maxDurationHours must not be below minDurationHours")
	}
	if in.MaxReservePrice != nil && !in.MaxReservePrice.IsPositive() {
		reasons = append(reasons, "maxReservePrice must be positive when set")
	}
	if !in.BidIncrement.IsPositive() {
		reasons = append(reasons, "bidIncrement must be positive")
	}
	if len(reasons) > 0 {
		return domain.ValidationReasons("invalid template", reasons)
	}
	return nil
}

func (in TemplateInput) apply(t *domain.AuctionTemplate) {
	t.Name = strings.TrimSpace(in.Name)
	t.MinDurationHours = in.MinDurationHours
	t.MaxDurationHours = in.MaxDurationHours
	t.MaxReservePrice = decimal.NullDecimal{}
	if in.MaxReservePrice != nil {
		t.MaxReservePrice = decimal.NewNullDecimal(*in.MaxReservePrice)
	}
	t.BidIncrement = in.BidIncrement
	t.RequiresApproval = in.RequiresApproval
	t.Active = in.Active
}

func (s *GovernanceService) CreateTemplate(ctx context.Context, in TemplateInput) (domain.AuctionTemplate, error) {
	if err := in.validate(); err != nil {
		return domain.AuctionTemplate{}, err
	}
	now := s.clock.Now()
	t := domain.AuctionTemplate{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.apply(&t)
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, repos.ErrDuplicate) {
			return domain.AuctionTemplate{}, domain.Conflict("a template named %q already exists", t.Name)
		}
		return domain.AuctionTemplate{}, storageErr("create template", err)
	}
	return t, nil
}

func (s *GovernanceService) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (domain.AuctionTemplate, error) {
	if err := in.validate(); err != nil {
		return domain.AuctionTemplate{}, err
	}
	t, err := s.repo.Template(ctx, id)
	if err != nil {
		return domain.AuctionTemplate{}, storageErr("load template", err)
	}
	in.apply(&t)
	t.UpdatedAt = s.clock.Now()

	ok, err := s.repo.UpdateTemplate(ctx, t)
	if errors.Is(err, repos.ErrDuplicate) {
		return domain.AuctionTemplate{}, domain.Conflict("a template named %q already exists", t.Name)
	}
	if err != nil {
		return domain.AuctionTemplate{}, storageErr("update template", err)
	}
	if !ok {
		return domain.AuctionTemplate{}, domain.NotFound("template", id)
	}
	s.store.InvalidateTemplate(ctx, id)
	return t, nil
}

func (s *GovernanceService) DeleteTemplate(ctx context.Context, id string) error {
	ok, err := s.repo.DeleteTemplate(ctx, id)
	if err != nil {
		return storageErr("delete template", err)
	}
	if !ok {
		return domain.NotFound("template", id)
	}
	s.store.InvalidateTemplate(ctx, id)
	return nil
}

func dedupeSorted(in []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
