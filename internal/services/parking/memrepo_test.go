package parking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
)

// memRepo is an in-memory Repository. WithinTx works on a copy of the data and swaps it
// in on success, so a failed unit of work leaves nothing behind.
type memRepo struct {
	mu sync.Mutex
	d  *memData

	// staleActiveReads hides ACTIVE stays from in-transaction lookups, as if a concurrent
	// entry committed right after the check.
	staleActiveReads bool
	// staleSpaceReads shows an OCCUPIED space as AVAILABLE to in-transaction reads, as if
	// an entry took it right after the read.
	staleSpaceReads bool

	// afterInsert runs inside InsertTransaction, e.g. to let another writer take the space.
	afterInsert   func(d *memData)
	failUpdate    error
	failInsertPay error
	txCount       int
}

type memData struct {
	zones      map[uint64]*models.Zone
	spaces     map[uint64]*models.Space
	vehicles   map[uint64]*models.Vehicle
	customers  map[uint64]*models.Customer
	rates      map[uint64]*models.Rate
	shifts     map[uint64]*models.Shift
	shiftRates []models.ParkingShiftRate
	txs        map[uint64]*models.Transaction
	payments   map[uint64]*models.Payment
	nextID     uint64
}

func newMemRepo() *memRepo {
	return &memRepo{d: &memData{
		zones:     map[uint64]*models.Zone{},
		spaces:    map[uint64]*models.Space{},
		vehicles:  map[uint64]*models.Vehicle{},
		customers: map[uint64]*models.Customer{},
		rates:     map[uint64]*models.Rate{},
		shifts:    map[uint64]*models.Shift{},
		txs:       map[uint64]*models.Transaction{},
		payments:  map[uint64]*models.Payment{},
		nextID:    1000,
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		zones:      make(map[uint64]*models.Zone, len(d.zones)),
		spaces:     make(map[uint64]*models.Space, len(d.spaces)),
		vehicles:   make(map[uint64]*models.Vehicle, len(d.vehicles)),
		customers:  make(map[uint64]*models.Customer, len(d.customers)),
		rates:      make(map[uint64]*models.Rate, len(d.rates)),
		shifts:     make(map[uint64]*models.Shift, len(d.shifts)),
		shiftRates: append([]models.ParkingShiftRate(nil), d.shiftRates...),
		txs:        make(map[uint64]*models.Transaction, len(d.txs)),
		payments:   make(map[uint64]*models.Payment, len(d.payments)),
		nextID:     d.nextID,
	}
	for k, v := range d.zones {
		cp := *v
		c.zones[k] = &cp
	}
	for k, v := range d.spaces {
		cp := *v
		c.spaces[k] = &cp
	}
	for k, v := range d.vehicles {
		cp := *v
		c.vehicles[k] = &cp
	}
	for k, v := range d.customers {
		cp := *v
		c.customers[k] = &cp
	}
	for k, v := range d.rates {
		cp := *v
		c.rates[k] = &cp
	}
	for k, v := range d.shifts {
		cp := *v
		c.shifts[k] = &cp
	}
	for k, v := range d.txs {
		cp := *v
		c.txs[k] = &cp
	}
	for k, v := range d.payments {
		cp := *v
		c.payments[k] = &cp
	}
	return c
}

func (d *memData) id() uint64 {
	d.nextID++
	return d.nextID
}

// seed helpers (tests call them before any operation)

func (r *memRepo) addZone(z models.Zone) *models.Zone {
	r.d.zones[z.ID] = &z
	return &z
}

func (r *memRepo) addSpace(s models.Space) *models.Space {
	r.d.spaces[s.ID] = &s
	return &s
}

func (r *memRepo) addRate(rt models.Rate) *models.Rate {
	r.d.rates[rt.ID] = &rt
	return &rt
}

func (r *memRepo) addShift(sh models.Shift, parkingID, rateID uint64) {
	r.d.shifts[sh.ID] = &sh
	r.d.shiftRates = append(r.d.shiftRates, models.ParkingShiftRate{
		ID: uint64(len(r.d.shiftRates) + 1), ParkingID: parkingID, ShiftID: sh.ID, RateID: rateID, Active: true,
	})
}

func (r *memRepo) space(id uint64) models.Space {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.d.spaces[id]
}

func (r *memRepo) vehicleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.d.vehicles)
}

func (r *memRepo) transactions() []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Transaction, 0, len(r.d.txs))
	for _, t := range r.d.txs {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) setRateAmount(id uint64, amount string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.rates[id].Amount = mustDec(amount)
}

// Repository

func (r *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	work := r.d.clone()
	if err := fn(ctx, &memStore{d: work, r: r, inTx: true}); err != nil {
		return err
	}
	r.d = work
	return nil
}

func (r *memRepo) view() *memStore {
	return &memStore{d: r.d, r: r}
}

func (r *memRepo) GetZone(ctx context.Context, id uint64) (*models.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetZone(ctx, id)
}

func (r *memRepo) GetSpace(ctx context.Context, id uint64) (*models.Space, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetSpace(ctx, id)
}

func (r *memRepo) UpdateSpaceStatus(ctx context.Context, space *models.Space) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().UpdateSpaceStatus(ctx, space)
}

func (r *memRepo) MarkSpaceOccupied(ctx context.Context, spaceID uint64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().MarkSpaceOccupied(ctx, spaceID, now)
}

func (r *memRepo) MarkSpaceAvailable(ctx context.Context, spaceID uint64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().MarkSpaceAvailable(ctx, spaceID, now)
}

func (r *memRepo) UpsertVehicle(ctx context.Context, plate string, now time.Time) (*models.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().UpsertVehicle(ctx, plate, now)
}

func (r *memRepo) UpsertCustomer(ctx context.Context, in models.CustomerInput, now time.Time) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().UpsertCustomer(ctx, in, now)
}

func (r *memRepo) ListActiveShifts(ctx context.Context) ([]*models.Shift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().ListActiveShifts(ctx)
}

func (r *memRepo) FindShiftRate(ctx context.Context, parkingID, shiftID uint64) (*models.Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().FindShiftRate(ctx, parkingID, shiftID)
}

func (r *memRepo) ListActiveRates(ctx context.Context) ([]*models.Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().ListActiveRates(ctx)
}

func (r *memRepo) GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetTransaction(ctx, id)
}

func (r *memRepo) GetTransactionForUpdate(ctx context.Context, id uint64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetTransactionForUpdate(ctx, id)
}

func (r *memRepo) GetActiveTransactionByVehicle(ctx context.Context, vehicleID uint64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetActiveTransactionByVehicle(ctx, vehicleID)
}

func (r *memRepo) GetActiveTransactionByPlate(ctx context.Context, plate string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetActiveTransactionByPlate(ctx, plate)
}

func (r *memRepo) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().InsertTransaction(ctx, tx)
}

func (r *memRepo) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().UpdateTransaction(ctx, tx)
}

func (r *memRepo) InsertPayment(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().InsertPayment(ctx, p)
}

func (r *memRepo) GetPaymentByTransaction(ctx context.Context, transactionID uint64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().GetPaymentByTransaction(ctx, transactionID)
}

func (r *memRepo) UpdatePayment(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view().UpdatePayment(ctx, p)
}

func (r *memRepo) ListTransactions(ctx context.Context, f TransactionFilter, page models.Page) ([]*models.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.view()
	var all []*models.Transaction
	for _, t := range r.d.txs {
		if !st.matches(t, f) {
			continue
		}
		all = append(all, st.hydrate(t))
	}
	sort.Slice(all, func(i, j int) bool {
		if f.OldestFirst {
			return all[i].EntryTime.Before(all[j].EntryTime)
		}
		return all[i].EntryTime.After(all[j].EntryTime)
	})
	total := len(all)
	from := page.Offset()
	if from > total {
		from = total
	}
	to := from + page.Size
	if to > total {
		to = total
	}
	return all[from:to], total, nil
}

func (r *memRepo) ClaimOverdueStays(ctx context.Context, enteredBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.view()
	var out []*models.Transaction
	for _, t := range st.sortedTxs() {
		if len(out) == limit {
			break
		}
		if t.IsActive() && t.EntryTime.Before(enteredBefore) && t.OverdueAlertedAt == nil {
			at := now
			t.OverdueAlertedAt = &at
			out = append(out, st.hydrate(t))
		}
	}
	return out, nil
}

func (r *memRepo) MarkOverduePayments(ctx context.Context, exitedBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.view()
	var out []*models.Transaction
	for _, t := range st.sortedTxs() {
		if len(out) == limit {
			break
		}
		if t.AwaitingPayment() && !t.MismatchUnresolved() && t.ExitTime != nil && t.ExitTime.Before(exitedBefore) {
			_ = t.MarkAsOverdue(now)
			out = append(out, st.hydrate(t))
		}
	}
	return out, nil
}

// memStore implements Store over one memData snapshot.
type memStore struct {
	d    *memData
	r    *memRepo
	inTx bool
}

func (s *memStore) GetZone(_ context.Context, id uint64) (*models.Zone, error) {
	z, ok := s.d.zones[id]
	if !ok || z.IsDeleted() {
		return nil, models.ErrNotFound
	}
	cp := *z
	var total, avail int32
	for _, sp := range s.d.spaces {
		if sp.ZoneID == id && !sp.IsDeleted() {
			total++
			if sp.Status == models.SpaceAvailable {
				avail++
			}
		}
	}
	cp.TotalSpaces, cp.AvailableSpaces = total, avail
	return &cp, nil
}

func (s *memStore) GetSpace(_ context.Context, id uint64) (*models.Space, error) {
	sp, ok := s.d.spaces[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *sp
	if s.inTx && s.r.staleSpaceReads && cp.Status == models.SpaceOccupied {
		cp.Status = models.SpaceAvailable
	}
	return &cp, nil
}

func (s *memStore) UpdateSpaceStatus(_ context.Context, space *models.Space) (bool, error) {
	sp, ok := s.d.spaces[space.ID]
	if !ok {
		return false, models.ErrNotFound
	}
	if sp.Status == models.SpaceOccupied {
		return false, nil
	}
	sp.Status, sp.DeletedAt, sp.UpdatedAt = space.Status, space.DeletedAt, space.UpdatedAt
	return true, nil
}

func (s *memStore) MarkSpaceOccupied(_ context.Context, spaceID uint64, now time.Time) (bool, error) {
	sp, ok := s.d.spaces[spaceID]
	if !ok {
		return false, nil
	}
	return sp.MarkOccupied(now), nil
}

func (s *memStore) MarkSpaceAvailable(_ context.Context, spaceID uint64, now time.Time) error {
	sp, ok := s.d.spaces[spaceID]
	if !ok {
		return models.ErrNotFound
	}
	sp.MarkAvailable(now)
	return nil
}

func (s *memStore) UpsertVehicle(_ context.Context, plate string, now time.Time) (*models.Vehicle, error) {
	for _, v := range s.d.vehicles {
		if v.LicensePlate == plate {
			v.RegisterVisit(now)
			v.DeletedAt = nil
			cp := *v
			return &cp, nil
		}
	}
	v := &models.Vehicle{ID: s.d.id(), LicensePlate: plate, FirstSeenAt: now, LastSeenAt: now, TotalVisits: 1, CreatedAt: now, UpdatedAt: now}
	s.d.vehicles[v.ID] = v
	cp := *v
	return &cp, nil
}

func (s *memStore) UpsertCustomer(_ context.Context, in models.CustomerInput, now time.Time) (*models.Customer, error) {
	doc := models.NormalizeDocument(in.DocumentNumber)
	for _, c := range s.d.customers {
		if c.DocumentTypeID == in.DocumentTypeID && c.DocumentNumber == doc {
			c.RegisterVisit(now)
			cp := *c
			return &cp, nil
		}
	}
	c := models.NewCustomer(in, now)
	c.ID = s.d.id()
	c.TotalVisits = 1
	s.d.customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memStore) ListActiveShifts(_ context.Context) ([]*models.Shift, error) {
	var out []*models.Shift
	for _, sh := range s.d.shifts {
		if sh.IsUsable() {
			cp := *sh
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindShiftRate(_ context.Context, parkingID, shiftID uint64) (*models.Rate, error) {
	for _, psr := range s.d.shiftRates {
		if psr.Active && psr.ParkingID == parkingID && psr.ShiftID == shiftID {
			if r, ok := s.d.rates[psr.RateID]; ok && r.IsUsable() {
				cp := *r
				return &cp, nil
			}
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) ListActiveRates(_ context.Context) ([]*models.Rate, error) {
	var out []*models.Rate
	for _, r := range s.d.rates {
		if r.Active && !r.IsDeleted() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) hydrate(t *models.Transaction) *models.Transaction {
	cp := *t
	if v, ok := s.d.vehicles[t.VehicleID]; ok {
		cp.LicensePlate = v.LicensePlate
	}
	if c, ok := s.d.customers[t.CustomerID]; ok {
		cp.CustomerName = c.FullName()
	}
	if z, ok := s.d.zones[t.ZoneID]; ok {
		cp.ZoneName, cp.ZoneCode = z.Name, z.Code
	}
	if sp, ok := s.d.spaces[t.SpaceID]; ok {
		cp.SpaceCode = sp.Code
	}
	if r, ok := s.d.rates[t.RateID]; ok {
		cp.RateName = r.Name
	}
	return &cp
}

func (s *memStore) sortedTxs() []*models.Transaction {
	out := make([]*models.Transaction, 0, len(s.d.txs))
	for _, t := range s.d.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

func (s *memStore) matches(t *models.Transaction, f TransactionFilter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			ok = ok || t.Status == st
		}
		if !ok {
			return false
		}
	}
	if f.PaymentStatus != nil && t.PaymentStatus != *f.PaymentStatus {
		return false
	}
	if f.ZoneID != nil && t.ZoneID != *f.ZoneID {
		return false
	}
	if f.Plate != "" {
		v, ok := s.d.vehicles[t.VehicleID]
		if !ok || !strings.HasPrefix(v.LicensePlate, f.Plate) {
			return false
		}
	}
	if f.EnteredFrom != nil && t.EntryTime.Before(*f.EnteredFrom) {
		return false
	}
	if f.EnteredBefore != nil && !t.EntryTime.Before(*f.EnteredBefore) {
		return false
	}
	if f.Mismatch != nil && t.DocumentMismatch != *f.Mismatch {
		return false
	}
	return true
}

func (s *memStore) GetTransaction(_ context.Context, id uint64) (*models.Transaction, error) {
	t, ok := s.d.txs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.hydrate(t), nil
}

func (s *memStore) GetTransactionForUpdate(ctx context.Context, id uint64) (*models.Transaction, error) {
	return s.GetTransaction(ctx, id)
}

func (s *memStore) GetActiveTransactionByVehicle(_ context.Context, vehicleID uint64) (*models.Transaction, error) {
	if s.inTx && s.r.staleActiveReads {
		return nil, models.ErrNotFound
	}
	for _, t := range s.d.txs {
		if t.VehicleID == vehicleID && t.IsActive() {
			return s.hydrate(t), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) GetActiveTransactionByPlate(_ context.Context, plate string) (*models.Transaction, error) {
	for _, t := range s.d.txs {
		if v, ok := s.d.vehicles[t.VehicleID]; ok && v.LicensePlate == plate && t.IsActive() {
			return s.hydrate(t), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) InsertTransaction(_ context.Context, tx *models.Transaction) error {
	for _, t := range s.d.txs {
		if !t.IsActive() {
			continue
		}
		if t.VehicleID == tx.VehicleID {
			return &models.ConflictError{Constraint: models.ConstraintActiveVehicle}
		}
		if t.SpaceID == tx.SpaceID {
			return &models.ConflictError{Constraint: models.ConstraintActiveSpace}
		}
	}
	tx.ID = s.d.id()
	cp := *tx
	s.d.txs[tx.ID] = &cp
	if s.r.afterInsert != nil {
		s.r.afterInsert(s.d)
	}
	return nil
}

func (s *memStore) UpdateTransaction(_ context.Context, tx *models.Transaction) error {
	if s.r.failUpdate != nil {
		return s.r.failUpdate
	}
	if _, ok := s.d.txs[tx.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *tx
	s.d.txs[tx.ID] = &cp
	return nil
}

func (s *memStore) InsertPayment(_ context.Context, p *models.Payment) error {
	if s.r.failInsertPay != nil {
		return s.r.failInsertPay
	}
	if _, ok := s.d.payments[p.TransactionID]; ok {
		return &models.ConflictError{Constraint: models.ConstraintPaymentOnce}
	}
	p.ID = s.d.id()
	cp := *p
	s.d.payments[p.TransactionID] = &cp
	return nil
}

func (s *memStore) GetPaymentByTransaction(_ context.Context, transactionID uint64) (*models.Payment, error) {
	p, ok := s.d.payments[transactionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdatePayment(_ context.Context, p *models.Payment) error {
	if _, ok := s.d.payments[p.TransactionID]; !ok {
		return models.ErrNotFound
	}
	cp := *p
	s.d.payments[p.TransactionID] = &cp
	return nil
}
