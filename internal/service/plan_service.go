package service

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// PlanProvider resolves how many pending post groups an account may hold.
type PlanProvider interface {
	PendingLimit(ctx context.Context, accountID int64) (int, error)
}

type subscriptionPlans struct {
	subs repository.SubscriptionRepository
	free int
	pro  int
	now  func() time.Time
}

func NewPlanProvider(subs repository.SubscriptionRepository, free, pro int) PlanProvider {
	return &subscriptionPlans{subs: subs, free: free, pro: pro, now: time.Now}
}

func (p *subscriptionPlans) PendingLimit(ctx context.Context, accountID int64) (int, error) {
	sub, err := p.subs.GetByUserID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return p.free, nil
		}
		return 0, err
	}
	if sub.Active(p.now()) {
		return p.pro, nil
	}
	return p.free, nil
}

// FixedPlan applies the same limit to every account.
type FixedPlan int

func (f FixedPlan) PendingLimit(context.Context, int64) (int, error) {
	return int(f), nil
}
