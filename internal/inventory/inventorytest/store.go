// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// Store implements inventory.RepositoryPort in memory. WithTx holds a lock
// for the whole callback and restores the previous state when it fails.
type Store struct {
	mu        sync.Mutex
	items     map[string]ledger.Item
	movements []ledger.Movement
	balances  map[ledger.ItemRef]inventory.Balance
	seq       int

	// FailInsertAt makes the n-th movement insert (1-based, counted per
	// transaction) fail with FailErr.
	FailInsertAt int
	FailErr      error

	// Aborts makes every WithTx run its callback this many extra times,
	// discarding the writes of each aborted run, the way a transaction
	// restarted after a serialization failure would.
	Aborts int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]ledger.Item), balances: make(map[ledger.ItemRef]inventory.Balance)}
}

// AddItem stores an item directly and returns it.
func (s *Store) AddItem(kind ledger.ItemKind, code string, threshold int64) ledger.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	item := ledger.Item{
		ID:        strings.ToLower(string(kind)) + "-" + strings.ToLower(code),
		Kind:      kind,
		Code:      code,
		Name:      code,
		Threshold: threshold,
		CreatedAt: time.Unix(int64(s.seq), 0).UTC(),
	}
	s.items[item.ID] = item
	return item
}

// Seed appends a movement and adjusts the maintained balance.
func (s *Store) Seed(ref ledger.ItemRef, dir ledger.Direction, qty int64, date string) ledger.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m := ledger.Movement{ID: fmt.Sprintf("seed-%03d", s.seq), Item: ref, Direction: dir, Qty: qty, Date: date, CreatedBy: "seed"}
	s.movements = append(s.movements, m)
	bal := s.balances[ref]
	bal.Item = ref
	bal.Qty += m.Signed()
	s.balances[ref] = bal
	return m
}

// SetBalance overwrites the maintained balance without touching movements.
func (s *Store) SetBalance(ref ledger.ItemRef, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[ref] = inventory.Balance{Item: ref, Qty: qty}
}

// Movements returns a copy of every stored movement in insertion order.
func (s *Store) Movements() []ledger.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Movement(nil), s.movements...)
}

// StoredBalance returns the maintained balance of ref.
func (s *Store) StoredBalance(ref ledger.ItemRef) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[ref].Qty
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.Aborts; i++ {
		movements, balances := s.checkpoint()
		_ = fn(ctx, &tx{store: s})
		s.restore(movements, balances)
	}
	movements, balances := s.checkpoint()
	if err := fn(ctx, &tx{store: s}); err != nil {
		s.restore(movements, balances)
		return err
	}
	return nil
}

func (s *Store) checkpoint() (int, map[ledger.ItemRef]inventory.Balance) {
	balances := make(map[ledger.ItemRef]inventory.Balance, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	return len(s.movements), balances
}

func (s *Store) restore(movements int, balances map[ledger.ItemRef]inventory.Balance) {
	s.movements = s.movements[:movements]
	s.balances = balances
}

// CreateItem implements inventory.RepositoryPort.
func (s *Store) CreateItem(ctx context.Context, item ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Kind == item.Kind && existing.Code == item.Code {
			return shared.ErrConflict
		}
	}
	s.items[item.ID] = item
	return nil
}

// UpdateItem implements inventory.RepositoryPort.
func (s *Store) UpdateItem(ctx context.Context, item ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return inventory.ErrItemNotFound
	}
	s.items[item.ID] = item
	return nil
}

// GetItem implements inventory.RepositoryPort.
func (s *Store) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getItem(id)
}

func (s *Store) getItem(id string) (ledger.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return ledger.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

// ListItems implements inventory.RepositoryPort. RM sorts before FG, then by code.
func (s *Store) ListItems(ctx context.Context, filter inventory.ItemFilter) ([]ledger.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []ledger.Item{}
	for _, item := range s.items {
		if filter.Kind != "" && item.Kind != filter.Kind {
			continue
		}
		if filter.Group != "" && item.Group != filter.Group {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(item.Code+" "+item.Name), strings.ToLower(filter.Query)) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind > items[j].Kind
		}
		return items[i].Code < items[j].Code
	})
	return items, nil
}

// ListMovements implements inventory.RepositoryPort, newest first.
func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ledger.Movement{}
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.Item != nil && m.Item != *filter.Item {
			continue
		}
		if filter.Ref != nil && (m.Ref == nil || *m.Ref != *filter.Ref) {
			continue
		}
		if filter.From != "" && m.Date < filter.From {
			continue
		}
		if filter.To != "" && m.Date > filter.To {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []ledger.Movement{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListBalances implements inventory.RepositoryPort.
func (s *Store) ListBalances(ctx context.Context) ([]inventory.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, b)
	}
	return out, nil
}

type tx struct {
	store   *Store
	inserts int
}

func (t *tx) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	return t.store.getItem(id)
}

func (t *tx) GetBalanceForUpdate(ctx context.Context, ref ledger.ItemRef) (inventory.Balance, error) {
	bal, ok := t.store.balances[ref]
	if !ok {
		return inventory.Balance{Item: ref}, inventory.ErrBalanceNotFound
	}
	return bal, nil
}

func (t *tx) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	t.store.balances[balance.Item] = balance
	return nil
}

func (t *tx) InsertMovement(ctx context.Context, m ledger.Movement) error {
	t.inserts++
	if t.store.FailInsertAt > 0 && t.inserts == t.store.FailInsertAt {
		return t.store.FailErr
	}
	t.store.movements = append(t.store.movements, m)
	return nil
}

func (t *tx) ListItemMovements(ctx context.Context, ref ledger.ItemRef) ([]ledger.Movement, error) {
	out := []ledger.Movement{}
	for _, m := range t.store.movements {
		if m.Item == ref {
			out = append(out, m)
		}
	}
	return out, nil
}
