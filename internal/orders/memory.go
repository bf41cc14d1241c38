package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store with the same conditional semantics as
// DynamoStore. It backs local runs and the engine tests.
type MemoryStore struct {
	mu        sync.Mutex
	orders    map[string]Order
	vendors   map[string]Vendor
	approvals map[string]ApprovalRecord
	nowFunc   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    map[string]Order{},
		vendors:   map[string]Vendor{},
		approvals: map[string]ApprovalRecord{},
		nowFunc:   time.Now,
	}
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if filter.Match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertOrder(ctx context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.OrderID]; exists {
		return ErrConflict
	}
	m.orders[order.OrderID] = m.prepareInsert(order)
	return nil
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, orderID string, patch Patch, expect Expect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOrder(orderID, expect); err != nil {
		return err
	}
	updated, err := m.applyPatch(m.orders[orderID], patch, expect.Version)
	if err != nil {
		return err
	}
	m.orders[orderID] = updated
	return nil
}

func (m *MemoryStore) CountAlterations(ctx context.Context, parentOrderID string, itemIndex int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.IsAlteration && o.ParentOrderID == parentOrderID && o.ParentItemIndex != nil && *o.ParentItemIndex == itemIndex {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetVendor(ctx context.Context, vendorID string) (*Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[vendorID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

// PutVendor keeps the stored credit usage of an existing vendor.
func (m *MemoryStore) PutVendor(ctx context.Context, vendor Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.vendors[vendor.VendorID]; ok {
		vendor.CurrentCreditUsed = existing.CurrentCreditUsed
	}
	vendor.UpdatedAt = m.nowFunc().UTC()
	m.vendors[vendor.VendorID] = vendor
	return nil
}

func (m *MemoryStore) UpdateVendorCredit(ctx context.Context, vendorID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendors[vendorID]; !ok {
		return ErrNotFound
	}
	m.addCredit(vendorID, delta)
	return nil
}

func (m *MemoryStore) ListApprovalRecords(ctx context.Context, orderID string) ([]ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ApprovalRecord
	for _, r := range m.approvals {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// Commit verifies every condition first and only then applies the writes.
func (m *MemoryStore) Commit(ctx context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// First pass: conditions
	var updated Order
	if u := mut.Update; u != nil {
		if err := m.checkOrder(u.OrderID, u.Expect); err != nil {
			return err
		}
		var err error
		if updated, err = m.applyPatch(m.orders[u.OrderID], u.Patch, u.Expect.Version); err != nil {
			return err
		}
	}
	if c := mut.Check; c != nil {
		if err := m.checkOrder(c.OrderID, c.Expect); err != nil {
			return err
		}
	}
	if mut.Insert != nil {
		if _, exists := m.orders[mut.Insert.OrderID]; exists {
			return ErrConflict
		}
	}
	if mut.Credit != nil {
		if _, ok := m.vendors[mut.Credit.VendorID]; !ok {
			return ErrConflict
		}
	}
	if mut.NewRecord != nil {
		if _, exists := m.approvals[mut.NewRecord.RecordID]; exists {
			return ErrConflict
		}
	}
	if r := mut.Review; r != nil {
		rec, ok := m.approvals[r.RecordID]
		if !ok || rec.Status != ApprovalPending {
			return ErrConflict
		}
	}

	// Second pass: writes
	now := m.nowFunc().UTC()
	if u := mut.Update; u != nil {
		m.orders[u.OrderID] = updated
	}
	if mut.Insert != nil {
		m.orders[mut.Insert.OrderID] = m.prepareInsert(*mut.Insert)
	}
	if mut.Credit != nil {
		m.addCredit(mut.Credit.VendorID, mut.Credit.Amount)
	}
	if mut.NewRecord != nil {
		m.approvals[mut.NewRecord.RecordID] = *mut.NewRecord
	}
	if r := mut.Review; r != nil {
		rec := m.approvals[r.RecordID]
		rec.Status = r.Status
		rec.ReviewedBy = r.ReviewedBy
		rec.ReviewedAt = &now
		rec.Notes = r.Notes
		m.approvals[r.RecordID] = rec
	}
	return nil
}

func (m *MemoryStore) checkOrder(orderID string, expect Expect) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrConflict
	}
	if o.Version != expect.Version {
		return ErrConflict
	}
	if expect.Field != "" {
		item, err := attributevalue.MarshalMap(o)
		if err != nil {
			return &StoreError{Op: "marshal order", Err: err}
		}
		var current string
		if av, ok := item[expect.Field]; ok {
			if err := attributevalue.Unmarshal(av, &current); err != nil {
				return ErrConflict
			}
		}
		if current != expect.Value {
			return ErrConflict
		}
	}
	if expect.CreditNotApplied && o.CreditApplied {
		return ErrConflict
	}
	return nil
}

// applyPatch round-trips the order through its attribute map so patches use
// the same attribute names as the DynamoDB store.
func (m *MemoryStore) applyPatch(o Order, patch Patch, version int64) (Order, error) {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return Order{}, &StoreError{Op: "marshal order", Err: err}
	}
	for k, v := range patch {
		switch k {
		case AttrOrderID, AttrVersion, AttrUpdatedAt:
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return Order{}, &StoreError{Op: fmt.Sprintf("marshal %s", k), Err: err}
		}
		item[k] = av
	}
	var out Order
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return Order{}, &StoreError{Op: "unmarshal order", Err: err}
	}
	out.Version = version + 1
	out.UpdatedAt = m.nowFunc().UTC()
	return out, nil
}

func (m *MemoryStore) prepareInsert(order Order) Order {
	now := m.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}
	return cloneOrder(order)
}

func (m *MemoryStore) addCredit(vendorID string, delta decimal.Decimal) {
	v := m.vendors[vendorID]
	v.CurrentCreditUsed = decimal.NewFromFloat(v.CurrentCreditUsed).Add(delta).Round(2).InexactFloat64()
	v.UpdatedAt = m.nowFunc().UTC()
	m.vendors[vendorID] = v
}

func cloneOrder(o Order) Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			if it.Extras != nil {
				it.Extras = append([]Extra(nil), it.Extras...)
			}
			items[i] = it
		}
		o.Items = items
	}
	if o.Attachments != nil {
		o.Attachments = append([]string(nil), o.Attachments...)
	}
	return o
}
