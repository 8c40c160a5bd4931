package input

import (
	"context"
	"math/rand"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
)

// DemoGenerator emits synthetic authentication traffic: mostly successful
// logins with occasional typos from a large benign pool, plus a small set of
// attacker addresses that hammer privileged accounts with failures.
type DemoGenerator struct {
	rate          int
	bufferSize    int
	attackPercent int
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
	generated     atomic.Uint64

	normalIPs    []netip.Addr
	attackerIPs  []netip.Addr
	users        []string
	targetUsers  []string
	eventTypes   []string
	attackerType []string
}

type DemoConfig struct {
	Rate          int // Events per second
	BufferSize    int
	AttackPercent int // Share of events coming from attacker addresses
}

func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Rate:          20,
		BufferSize:    1000,
		AttackPercent: 15,
	}
}

func NewDemoGenerator(config DemoConfig) *DemoGenerator {
	def := DefaultDemoConfig()
	if config.Rate <= 0 {
		config.Rate = def.Rate
	}
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.AttackPercent < 0 || config.AttackPercent > 100 {
		config.AttackPercent = def.AttackPercent
	}

	return &DemoGenerator{
		rate:          config.Rate,
		bufferSize:    config.BufferSize,
		attackPercent: config.AttackPercent,
		stopChan:      make(chan struct{}),
		normalIPs: generateIPPool(2000, []string{
			"203.0.113.", "198.51.100.", "192.0.2.", "100.64.", "100.65.",
		}),
		attackerIPs: generateIPPool(8, []string{
			"45.33.", "185.220.", "89.234.", "91.121.", "51.15.",
		}),
		users:        []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi"},
		targetUsers:  []string{"root", "admin", "administrator", "ubuntu", "oracle", "postgres", "test"},
		eventTypes:   []string{"login", "auth", "file_access", "api_call"},
		attackerType: []string{"login", "login_attempt", "ssh_login"},
	}
}

func (g *DemoGenerator) Start(ctx context.Context) (<-chan domain.IngestRequest, <-chan error) {
	reqChan := make(chan domain.IngestRequest, g.bufferSize)
	errChan := make(chan error, 1)

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		close(reqChan)
		close(errChan)
		return reqChan, errChan
	}
	g.running = true
	g.stopChan = make(chan struct{})
	stop := g.stopChan
	g.mu.Unlock()

	go func() {
		defer close(reqChan)
		defer close(errChan)

		log.Info().Int("rate", g.rate).Int("attack_percent", g.attackPercent).Msg("Demo generator started")

		interval := time.Second / time.Duration(g.rate)
		if interval < time.Millisecond {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		for {
			select {
			case <-ctx.Done():
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped (context cancelled)")
				return
			case <-stop:
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped")
				return
			case <-ticker.C:
				select {
				case reqChan <- g.generate(rng):
					g.generated.Add(1)
				default:
				}
			}
		}
	}()

	return reqChan, errChan
}

func (g *DemoGenerator) generate(rng *rand.Rand) domain.IngestRequest {
	if rng.Intn(100) < g.attackPercent {
		return domain.IngestRequest{
			EventType:     g.attackerType[rng.Intn(len(g.attackerType))],
			Identity:      g.targetUsers[rng.Intn(len(g.targetUsers))],
			Outcome:       domain.OutcomeFailed,
			SourceAddress: g.attackerIPs[rng.Intn(len(g.attackerIPs))],
		}
	}

	outcome := domain.OutcomeSucceeded
	switch n := rng.Intn(100); {
	case n < 5:
		outcome = domain.OutcomeFailed
	case n < 8:
		outcome = domain.OutcomeUnknown
	}
	return domain.IngestRequest{
		EventType:     g.eventTypes[rng.Intn(len(g.eventTypes))],
		Identity:      g.users[rng.Intn(len(g.users))],
		Outcome:       outcome,
		SourceAddress: g.normalIPs[rng.Intn(len(g.normalIPs))],
	}
}

func (g *DemoGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	close(g.stopChan)
	g.running = false
	return nil
}

func (g *DemoGenerator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *DemoGenerator) Generated() uint64 {
	return g.generated.Load()
}

// generateIPPool builds count distinct-ish addresses from the given
// prefixes. Two-octet prefixes get two random octets appended.
func generateIPPool(count int, prefixes []string) []netip.Addr {
	rng := rand.New(rand.NewSource(42))
	pool := make([]netip.Addr, 0, count)
	for len(pool) < count {
		prefix := prefixes[rng.Intn(len(prefixes))]
		s := prefix
		if octets := countDots(prefix); octets == 2 {
			s += strconv.Itoa(rng.Intn(256)) + "." + strconv.Itoa(1+rng.Intn(254))
		} else {
			s += strconv.Itoa(1 + rng.Intn(254))
		}
		if addr, err := netip.ParseAddr(s); err == nil {
			pool = append(pool, addr)
		}
	}
	return pool
}

func countDots(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			n++
		}
	}
	return n
}
