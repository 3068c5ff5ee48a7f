package catalog

import "sort"

// Plan is an immutable catalog entry.
type Plan struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	PriceMinorUnits int64    `json:"price_minor_units"`
	DurationDays    int      `json:"duration_days"` // 0 for lifetime plans
	IsLifetime      bool     `json:"is_lifetime"`
	Description     string   `json:"description"`
	Features        []string `json:"features,omitempty"`
}

// IsFree reports whether the plan is granted without a provider charge.
func (p Plan) IsFree() bool {
	return p.PriceMinorUnits == 0
}

// Catalog is a read-only plan lookup table.
type Catalog struct {
	plans map[string]Plan
}

// New builds a catalog from the given plans. Later duplicates win.
func New(plans ...Plan) *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		c.plans[p.ID] = p
	}
	return c
}

// Default returns the plans sold by the service.
func Default() *Catalog {
	return New(
		Plan{
			ID:              "free-trial",
			DisplayName:     "Free Trial",
			PriceMinorUnits: 0,
			DurationDays:    7,
			Description:     "Introduction to financial literacy basics",
			Features:        []string{"Basic forex concepts", "Sample lessons", "Community access"},
		},
		Plan{
			ID:              "vip-signals",
			DisplayName:     "VIP Signals",
			PriceMinorUnits: 200_00,
			DurationDays:    30,
			Description:     "Daily & weekly trading alerts",
			Features:        []string{"Daily market alerts", "Entry & exit points", "Expert analysis", "Telegram updates"},
		},
		Plan{
			ID:              "pro-trader-plan",
			DisplayName:     "Pro Trader Plan",
			PriceMinorUnits: 500_00,
			DurationDays:    30,
			Description:     "Complete package with mentorship",
			Features:        []string{"All courses", "Live trading sessions", "1-on-1 mentorship", "Trading signals", "Priority support"},
		},
		Plan{
			ID:              "lifetime-access",
			DisplayName:     "Lifetime Access",
			PriceMinorUnits: 2000_00,
			DurationDays:    0,
			IsLifetime:      true,
			Description:     "Forever access to all courses",
			Features:        []string{"All courses forever", "Lifetime updates", "Premium resources", "Community access", "Priority support"},
		},
	)
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// All returns every plan ordered by price, then id.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceMinorUnits != out[j].PriceMinorUnits {
			return out[i].PriceMinorUnits < out[j].PriceMinorUnits
		}
		return out[i].ID < out[j].ID
	})
	return out
}
