package event

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

var planTiers = []string{"free", "basic", "pro", "enterprise"}

// Generator produces synthetic customer events with feature values in
// realistic ranges. Safe for use from a single goroutine.
type Generator struct {
	rng  *rand.Rand
	now  func() time.Time
	pool []string // customer IDs reused across events
}

// NewGenerator creates a generator seeded for reproducible runs. With
// seed 0 a random seed is used.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	g := &Generator{
		rng: rand.New(rand.NewPCG(seed, seed)),
		now: time.Now,
	}
	g.pool = make([]string, 200)
	for i := range g.pool {
		g.pool[i] = uuid.NewString()
	}
	return g
}

// Next returns a fresh event with a unique event_id and a customer_id
// drawn from the generator's customer pool.
func (g *Generator) Next() *CustomerEvent {
	tenure := g.rng.IntN(72)
	spend := 5 + g.rng.Float64()*495
	tickets := g.rng.IntN(12)
	usage := g.rng.Float64()

	// Long-tenure, high-usage customers cluster in paid tiers.
	tier := planTiers[g.rng.IntN(len(planTiers))]
	if tenure > 36 && usage > 0.6 {
		tier = planTiers[2+g.rng.IntN(2)]
	}

	return &CustomerEvent{
		EventID:        uuid.NewString(),
		CustomerID:     g.pool[g.rng.IntN(len(g.pool))],
		PlanTier:       tier,
		TenureMonths:   tenure,
		MonthlySpend:   spend,
		SupportTickets: tickets,
		UsageScore:     usage,
		GeneratedAt:    g.now().UTC(),
	}
}
