package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// DefaultMaxTableLen caps every table that is not trim exempt.
const DefaultMaxTableLen = 200

var ErrTableNotReady = errors.New("table has not received its partial snapshot")

// Mutation describes what one feed message did to its table.
type Mutation struct {
	Table   string
	Action  string
	Applied int
	Missed  int
	Trimmed int
}

// TableSynchronizer applies partial/insert/update/delete feed actions onto local tables.
// Tables are owned by the goroutine calling Apply; only the readiness signals are shared.
type TableSynchronizer struct {
	tables      map[string]*KeyedTable
	maxTableLen int
	logger      *log.Logger

	mu    sync.Mutex
	ready map[string]chan struct{}
}

func NewTableSynchronizer(maxTableLen int, logger *log.Logger) *TableSynchronizer {
	if logger == nil {
		logger = log.Default()
	}

	return &TableSynchronizer{
		tables:      make(map[string]*KeyedTable),
		maxTableLen: maxTableLen,
		logger:      logger.WithPrefix("sync"),
		ready:       make(map[string]chan struct{}),
	}
}

// IsTrimExempt reports whether a table must never lose rows to trimming.
// Dropping order state would desynchronize the consumer.
func IsTrimExempt(table string) bool {
	return table == TableOrder || strings.HasPrefix(table, "orderBook")
}

func (s *TableSynchronizer) Apply(msg *FeedMessage) (Mutation, error) {
	m := Mutation{Table: msg.Table, Action: msg.Action}

	if !ValidAction(msg.Action) {
		return m, fmt.Errorf("%w: %q on table %s", ErrUnknownAction, msg.Action, msg.Table)
	}

	if msg.Action == ActionPartial {
		m.Applied = len(msg.Data)
		m.Trimmed = s.applyPartial(msg)
		return m, nil
	}

	table, ok := s.tables[msg.Table]
	if !ok {
		return m, fmt.Errorf("%w: %s %s", ErrTableNotReady, msg.Action, msg.Table)
	}

	switch msg.Action {
	case ActionInsert:
		for _, rec := range msg.Data {
			table.Upsert(rec)
			m.Applied++
		}
		m.Trimmed = s.trim(table)

	case ActionUpdate:
		for _, rec := range msg.Data {
			if table.Update(rec) {
				m.Applied++
			} else {
				m.Missed++
			}
		}

	case ActionDelete:
		for _, rec := range msg.Data {
			if table.Remove(rec) {
				m.Applied++
			} else {
				m.Missed++
			}
		}
	}

	// an update or delete can arrive for a row we never saw or already purged
	if m.Missed > 0 {
		s.logger.Debug("rows not found", "table", msg.Table, "action", msg.Action, "missed", m.Missed)
	}

	return m, nil
}

// Table returns the live table. Callers must stay on the goroutine that calls Apply.
func (s *TableSynchronizer) Table(name string) (*KeyedTable, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Ready returns a channel that is closed once the table received its partial snapshot.
func (s *TableSynchronizer) Ready(table string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readyChan(table)
}

func (s *TableSynchronizer) applyPartial(msg *FeedMessage) int {
	table, ok := s.tables[msg.Table]
	if !ok {
		table = NewKeyedTable(msg.Table, msg.Keys, msg.Data)
		s.tables[msg.Table] = table
		s.logger.Debug("partial", "table", msg.Table, "keys", msg.Keys, "rows", len(msg.Data))
	} else {
		if !slices.Equal(table.Keys(), msg.Keys) {
			s.logger.Warn("partial keys differ from frozen keys, keeping frozen",
				"table", msg.Table, "frozen", table.Keys(), "got", msg.Keys)
		}
		table.Reset(msg.Data)
	}

	trimmed := s.trim(table)

	s.mu.Lock()
	ch := s.readyChan(msg.Table)
	select {
	case <-ch:
	default:
		close(ch)
	}
	s.mu.Unlock()

	return trimmed
}

func (s *TableSynchronizer) trim(table *KeyedTable) int {
	if IsTrimExempt(table.Name()) {
		return 0
	}
	return table.Trim(s.maxTableLen)
}

func (s *TableSynchronizer) readyChan(table string) chan struct{} {
	ch, ok := s.ready[table]
	if !ok {
		ch = make(chan struct{})
		s.ready[table] = ch
	}
	return ch
}
