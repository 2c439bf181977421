package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
	"marketpay/internal/metrics"
	"marketpay/internal/repository"
)

// EnsureAccountRequest identifies the recipient being onboarded. Empty URLs
// fall back to the public app dashboard.
type EnsureAccountRequest struct {
	RecipientID uuid.UUID
	Email       string
	Country     string
	ReturnURL   string
	RefreshURL  string
}

type OnboardingResult struct {
	AccountID           string
	OnboardingURL       string
	OnboardingCompleted bool
	IsExisting          bool
}

type Config struct {
	DefaultCountry string
	PublicAppURL   string
}

type Service struct {
	accounts accountRepo
	gateway  accountGateway
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	cfg      Config
}

func NewService(accounts accountRepo, gw accountGateway, log logrus.FieldLogger, m *metrics.Metrics, cfg Config) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{accounts: accounts, gateway: gw, log: log, metrics: m, cfg: cfg}
}

// EnsureAccount returns the recipient's connected account, creating it at the
// gateway on first use, plus a fresh onboarding link while onboarding is
// incomplete.
func (s *Service) EnsureAccount(ctx context.Context, req EnsureAccountRequest) (*OnboardingResult, error) {
	if req.RecipientID == uuid.Nil {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	log := s.log.WithField("recipient_id", req.RecipientID)

	existing, err := s.accounts.GetByRecipientID(ctx, req.RecipientID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("load connected account: %w", err)
	}

	if existing != nil {
		res := &OnboardingResult{
			AccountID:           existing.ExternalAccountID,
			OnboardingCompleted: existing.OnboardingCompleted,
			IsExisting:          true,
		}
		if existing.OnboardingCompleted {
			s.metrics.OnboardingTotal.WithLabelValues("completed").Inc()
			return res, nil
		}
		link, err := s.onboardingLink(ctx, existing.ExternalAccountID, req)
		if err != nil {
			s.metrics.OnboardingTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		res.OnboardingURL = link
		s.metrics.OnboardingTotal.WithLabelValues("resumed").Inc()
		return res, nil
	}

	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		country = s.cfg.DefaultCountry
	}
	acc, err := s.gateway.CreateAccount(ctx, gateway.AccountParams{
		RecipientID: req.RecipientID.String(),
		Email:       req.Email,
		Country:     country,
	})
	if err != nil {
		s.metrics.OnboardingTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create connected account: %w", err)
	}
	log = log.WithField("account_id", acc.ID)

	accountID := acc.ID
	isExisting := false
	record := &domain.ConnectedAccount{
		RecipientID:       req.RecipientID,
		ExternalAccountID: acc.ID,
		Country:           country,
	}
	if err := s.accounts.Create(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			// Another request onboarded this recipient first; keep its account.
			if winner, lerr := s.accounts.GetByRecipientID(ctx, req.RecipientID); lerr == nil {
				log.WithField("kept_account_id", winner.ExternalAccountID).Warn("connected account created concurrently, discarding duplicate")
				accountID = winner.ExternalAccountID
				isExisting = true
			}
		} else {
			log.WithError(err).Warn("connected account created at gateway but not persisted")
		}
	}

	link, err := s.onboardingLink(ctx, accountID, req)
	if err != nil {
		s.metrics.OnboardingTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.OnboardingTotal.WithLabelValues("created").Inc()
	log.Info("connected account onboarding started")

	return &OnboardingResult{
		AccountID:     accountID,
		OnboardingURL: link,
		IsExisting:    isExisting,
	}, nil
}

func (s *Service) onboardingLink(ctx context.Context, accountID string, req EnsureAccountRequest) (string, error) {
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.PublicAppURL + "/dashboard?payment_onboarding=complete"
	}
	refreshURL := req.RefreshURL
	if refreshURL == "" {
		refreshURL = s.cfg.PublicAppURL + "/dashboard?payment_onboarding=refresh"
	}
	link, err := s.gateway.CreateOnboardingLink(ctx, accountID, returnURL, refreshURL)
	if err != nil {
		return "", fmt.Errorf("create onboarding link: %w", err)
	}
	return link, nil
}

// IsPayable reports whether money may be routed to the recipient.
func (s *Service) IsPayable(ctx context.Context, recipientID uuid.UUID) (bool, error) {
	acc, err := s.accounts.GetByRecipientID(ctx, recipientID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load connected account: %w", err)
	}
	return acc.Payable(), nil
}

// Status returns the stored account flags, or ErrAccountNotFound.
func (s *Service) Status(ctx context.Context, recipientID uuid.UUID) (*domain.ConnectedAccount, error) {
	return s.accounts.GetByRecipientID(ctx, recipientID)
}
