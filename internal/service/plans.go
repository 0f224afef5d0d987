package service

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

//go:embed plans.yaml
var defaultPlans []byte

// LoadPlans reads the plan catalog from path, or the built-in catalog when
// path is empty.
func LoadPlans(path string) ([]domain.Plan, error) {
	data := defaultPlans
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read plans file: %w", err)
		}
	}
	return parsePlans(data)
}

func parsePlans(data []byte) ([]domain.Plan, error) {
	var plans []domain.Plan
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	for i, p := range plans {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("plan %d: id and name are required", i)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("plan %s: price must be positive", p.ID)
		}
		if p.BillingCycle != domain.BillingMonthly && p.BillingCycle != domain.BillingYearly {
			return nil, fmt.Errorf("plan %s: unknown billing cycle %q", p.ID, p.BillingCycle)
		}
		if p.Features == nil {
			plans[i].Features = []string{}
		}
	}
	return plans, nil
}
