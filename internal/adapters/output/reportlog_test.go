package output

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/domain"
)

func testReport(addr string, count int) *domain.IncidentReport {
	trigger := domain.Trigger{SourceAddress: netip.MustParseAddr(addr), Count: count, Identity: "alice"}
	return domain.NewIncidentReport(trigger, domain.Enrichment{Country: "FR"}, "narrative", "test",
		time.Date(2026, 1, 1, 0, 0, count, 0, time.UTC))
}

type recordingSubscriber struct {
	mu      sync.Mutex
	reports []*domain.IncidentReport
}

func (s *recordingSubscriber) OnReport(r *domain.IncidentReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func TestReportLog_AppendAndList(t *testing.T) {
	l := NewReportLog()
	sub := &recordingSubscriber{}
	l.Subscribe(sub)

	r1, r2 := testReport("10.0.0.1", 5), testReport("10.0.0.2", 6)
	require.True(t, l.Append(l.Epoch(), r1))
	require.True(t, l.Append(l.Epoch(), r2))

	assert.Equal(t, []*domain.IncidentReport{r1, r2}, l.List())
	assert.Equal(t, 2, l.Len())
	assert.Len(t, sub.reports, 2)
}

func TestReportLog_ClearDiscardsStaleEpoch(t *testing.T) {
	l := NewReportLog()
	epoch := l.Epoch()
	require.True(t, l.Append(epoch, testReport("10.0.0.1", 5)))

	l.Clear()
	assert.Empty(t, l.List())
	assert.Equal(t, epoch+1, l.Epoch())

	assert.False(t, l.Append(epoch, testReport("10.0.0.3", 5)), "report from before the clear must be discarded")
	assert.Empty(t, l.List())

	assert.True(t, l.Append(l.Epoch(), testReport("10.0.0.4", 5)))
	assert.Len(t, l.List(), 1)
}

func TestReportLog_ListIsCopy(t *testing.T) {
	l := NewReportLog()
	l.Append(l.Epoch(), testReport("10.0.0.1", 5))

	list := l.List()
	list[0] = nil
	assert.NotNil(t, l.List()[0])
}
