package audit

import (
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/stopkeep/core"
	logadapter "github.com/raykavin/stopkeep/logger/zerolog"
)

func testLogger() core.Logger {
	zl := zerolog.New(io.Discard)
	return logadapter.NewAdapter(&zl)
}

func testJournal(t *testing.T) (*Journal, *core.ManualClock) {
	t.Helper()

	clock := core.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	journal, err := NewInMemory(testLogger(), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, journal.Close())
	})

	return journal, clock
}

func TestJournalRecordAndRecent(t *testing.T) {
	journal, clock := testJournal(t)
	orderID := common.Hash{0xaa}

	first := core.NewEvent(core.EventStopConfigured, orderID, clock.Now())
	require.NoError(t, journal.Record(first))

	clock.Advance(time.Second)
	second := core.NewEvent(core.EventStopUpdated, orderID, clock.Now())
	require.NoError(t, journal.Record(second))

	events, err := journal.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, core.EventStopUpdated, events[0].Kind)
	require.Equal(t, core.EventStopConfigured, events[1].Kind)
	require.Equal(t, orderID, events[0].OrderID)
}

func TestJournalRecentLimit(t *testing.T) {
	journal, clock := testJournal(t)

	for i := 0; i < 5; i++ {
		ev := core.NewEvent(core.EventStopUpdated, common.Hash{byte(i)}, clock.Now())
		require.NoError(t, journal.Record(ev))
		clock.Advance(time.Second)
	}

	events, err := journal.Recent(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, common.Hash{0x04}, events[0].OrderID)
	require.Equal(t, common.Hash{0x02}, events[2].OrderID)

	count, err := journal.Count()
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestJournalRecentEmpty(t *testing.T) {
	journal, _ := testJournal(t)

	events, err := journal.Recent(10)
	require.NoError(t, err)
	require.Empty(t, events)

	events, err = journal.Recent(0)
	require.NoError(t, err)
	require.Nil(t, events)
}

func TestJournalOrderWithinSameInstant(t *testing.T) {
	journal, clock := testJournal(t)

	// Same timestamp, sequence number breaks the tie.
	for i := 0; i < 3; i++ {
		ev := core.NewEvent(core.EventStopUpdated, common.Hash{byte(i)}, clock.Now())
		require.NoError(t, journal.Record(ev))
	}

	events, err := journal.Recent(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, common.Hash{0x02}, events[0].OrderID)
	require.Equal(t, common.Hash{0x00}, events[2].OrderID)
}

func TestJournalOnEventFeedHook(t *testing.T) {
	journal, clock := testJournal(t)

	ev := core.NewEvent(core.EventExecutionSettled, common.Hash{0xaa}, clock.Now())
	ev.Reason = ""
	journal.OnEvent(ev)

	count, err := journal.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
