package policy

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
	"gopkg.in/yaml.v3"
)

// DefaultCompensationRules is used when no rule file is configured.
func DefaultCompensationRules() []models.CompensationRule {
	return []models.CompensationRule{
		{ID: "delay_3d", TriggerType: models.TriggerDelay, Threshold: 3, CompensationType: models.CompensationPoints, Unit: models.UnitPoints, Value: 500, AutoApproved: true, Description: "Harvest delayed 3+ days"},
		{ID: "delay_7d", TriggerType: models.TriggerDelay, Threshold: 7, CompensationType: models.CompensationVoucher, Unit: models.UnitPercent, Value: 10, AutoApproved: true, Description: "Harvest delayed 7+ days"},
		{ID: "delay_14d", TriggerType: models.TriggerDelay, Threshold: 14, CompensationType: models.CompensationPartialRefund, Unit: models.UnitPercent, Value: 20, AutoApproved: false, Description: "Harvest delayed 14+ days"},
		{ID: "shortage_10p", TriggerType: models.TriggerShortage, Threshold: 10, CompensationType: models.CompensationVoucher, Unit: models.UnitPercent, Value: 5, AutoApproved: true, Description: "Harvest short by 10%+"},
		{ID: "shortage_30p", TriggerType: models.TriggerShortage, Threshold: 30, CompensationType: models.CompensationDiscountCurrentOrder, Unit: models.UnitPercent, Value: 15, AutoApproved: false, Description: "Harvest short by 30%+"},
	}
}

type ruleFile struct {
	Rules []models.CompensationRule `yaml:"rules"`
}

// LoadCompensationRules reads a YAML rule table:
//
//	rules:
//	  - id: delay_7d
//	    trigger_type: delay_threshold
//	    threshold: 7
//	    compensation_type: voucher
//	    compensation_unit: percent
//	    value: 10
//	    auto_approved: true
func LoadCompensationRules(path string) ([]models.CompensationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if err := ValidateCompensationRules(f.Rules); err != nil {
		return nil, err
	}
	return f.Rules, nil
}

// ValidateCompensationRules rejects tables the matcher cannot dispatch.
func ValidateCompensationRules(rules []models.CompensationRule) error {
	seen := map[string]bool{}
	tiers := map[string]bool{}
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("rule without id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		switch r.TriggerType {
		case models.TriggerDelay, models.TriggerShortage:
		default:
			return fmt.Errorf("rule %q: unknown trigger type %q", r.ID, r.TriggerType)
		}
		tierKey := fmt.Sprintf("%s/%d", r.TriggerType, r.Threshold)
		if tiers[tierKey] {
			return fmt.Errorf("rule %q: duplicate threshold %d for %s", r.ID, r.Threshold, r.TriggerType)
		}
		tiers[tierKey] = true

		if r.Threshold <= 0 {
			return fmt.Errorf("rule %q: threshold must be positive", r.ID)
		}
		if r.Value <= 0 {
			return fmt.Errorf("rule %q: value must be positive", r.ID)
		}

		switch r.CompensationType {
		case models.CompensationPoints:
			if r.Unit != models.UnitPoints {
				return fmt.Errorf("rule %q: points compensation requires points unit", r.ID)
			}
		case models.CompensationVoucher, models.CompensationPartialRefund, models.CompensationDiscountCurrentOrder:
			switch r.Unit {
			case models.UnitPercent:
				if r.Value > 100 {
					return fmt.Errorf("rule %q: percent value above 100", r.ID)
				}
			case models.UnitFixed:
			case models.UnitPoints:
				return fmt.Errorf("rule %q: points unit only valid for points compensation", r.ID)
			default:
				return fmt.Errorf("rule %q: unknown unit %q", r.ID, r.Unit)
			}
		default:
			return fmt.Errorf("rule %q: unknown compensation type %q", r.ID, r.CompensationType)
		}
	}
	return nil
}

// MatchRule returns the rule of the given trigger whose threshold is the
// highest one not exceeding measure. If that tier was already compensated
// for the order (recorded[ruleID]) nothing matches: lower tiers are
// subsumed by the higher one.
func MatchRule(rules []models.CompensationRule, trigger models.TriggerType, measure int, recorded map[string]bool) (models.CompensationRule, bool) {
	if measure <= 0 {
		return models.CompensationRule{}, false
	}
	candidates := make([]models.CompensationRule, 0, len(rules))
	for _, r := range rules {
		if r.TriggerType == trigger && r.Threshold <= measure {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return models.CompensationRule{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Threshold > candidates[j].Threshold })
	best := candidates[0]
	if recorded[best.ID] {
		return models.CompensationRule{}, false
	}
	return best, true
}

// CompensationValue converts a rule into an amount: VND for percent/fixed
// units, loyalty points for the points unit.
func CompensationValue(rule models.CompensationRule, orderValue int64) int64 {
	switch rule.Unit {
	case models.UnitPercent:
		return money.PercentInt(orderValue, int(rule.Value))
	case models.UnitFixed, models.UnitPoints:
		return rule.Value
	}
	return 0
}

// DelayDays is the positive number of calendar days harvest is late; the
// actual harvest date is used once known.
func DelayDays(lot models.Lot, now time.Time, loc *time.Location) int {
	ref := now
	if lot.ActualHarvestDate != nil {
		ref = *lot.ActualHarvestDate
	}
	d := -DaysBeforeHarvest(ref, lot.EstimatedHarvestDate, loc)
	if d < 0 {
		return 0
	}
	return d
}

// ShortagePercent is the whole-percent shortfall of fulfilled against ordered
// quantity across pre-order lines whose allocation is known.
func ShortagePercent(items []models.OrderItem) int {
	var ordered, fulfilled int
	for _, it := range items {
		if !it.IsPreorder || it.FulfilledQuantity == nil {
			continue
		}
		ordered += it.Quantity
		f := *it.FulfilledQuantity
		if f > it.Quantity {
			f = it.Quantity
		}
		if f < 0 {
			f = 0
		}
		fulfilled += f
	}
	if ordered == 0 {
		return 0
	}
	return (ordered - fulfilled) * 100 / ordered
}
