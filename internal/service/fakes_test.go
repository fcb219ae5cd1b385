package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// The fakes below mirror the conditional-write semantics of the postgres
// stores so the services can be exercised without a database. All guards
// (status preconditions, cap headroom, claimed-amount compare-and-set) are
// enforced under one mutex, matching the atomicity the real stores get from
// transactions.

type fakeDealStore struct {
	mu    sync.Mutex
	deals map[string]domain.Deal
}

func newFakeDealStore() *fakeDealStore {
	return &fakeDealStore{deals: make(map[string]domain.Deal)}
}

func (f *fakeDealStore) Create(_ context.Context, deal domain.Deal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deals[deal.ID] = deal
	return nil
}

func (f *fakeDealStore) GetByID(_ context.Context, id string) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return domain.Deal{}, domain.NotFound("deal %s not found", id)
	}
	return deal, nil
}

func (f *fakeDealStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Deal, 0, len(f.deals))
	for _, d := range f.deals {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDealStore) UpdateStatus(_ context.Context, id string, from, to domain.DealStatus) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return domain.Deal{}, domain.NotFound("deal %s not found", id)
	}
	if deal.Status != from {
		return domain.Deal{}, domain.Conflict(domain.CodeConcurrentUpdate,
			"deal %s moved from %s concurrently", id, from)
	}
	deal.Status = to
	f.deals[id] = deal
	return deal, nil
}

func (f *fakeDealStore) SettleIfFull(_ context.Context, id string) (domain.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return domain.Deal{}, false, domain.NotFound("deal %s not found", id)
	}
	if !deal.Status.AcceptingContributions() || deal.HardCap <= 0 || deal.TotalRaised < deal.HardCap {
		return deal, false, nil
	}
	deal.Status = domain.DealStatusSettlement
	f.deals[id] = deal
	return deal, true, nil
}

type fakeContributionStore struct {
	mu    sync.Mutex
	byTx  map[string]domain.Contribution
	deals *fakeDealStore
	users *fakeUserStore
	flags []domain.ComplianceFlag
}

func newFakeContributionStore(deals *fakeDealStore, users *fakeUserStore) *fakeContributionStore {
	return &fakeContributionStore{
		byTx:  make(map[string]domain.Contribution),
		deals: deals,
		users: users,
	}
}

// countedPeers counts the user's other PENDING or CONFIRMED rows for the
// deal, mirroring the contributor-count maintenance in the real store.
func (f *fakeContributionStore) countedPeers(dealID, userID, excludeID string) int {
	n := 0
	for _, c := range f.byTx {
		if c.DealID == dealID && c.UserID == userID && c.ID != excludeID &&
			(c.Status == domain.ContributionPending || c.Status == domain.ContributionConfirmed) {
			n++
		}
	}
	return n
}

func (f *fakeContributionStore) Record(_ context.Context, c domain.Contribution) (domain.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.byTx[c.TxHash]; exists {
		return domain.Contribution{}, domain.Conflict(domain.CodeDuplicateTxHash,
			"a contribution for transaction %s already exists", c.TxHash)
	}

	f.deals.mu.Lock()
	defer f.deals.mu.Unlock()
	deal, ok := f.deals.deals[c.DealID]
	if !ok {
		return domain.Contribution{}, domain.NotFound("deal %s not found", c.DealID)
	}
	if !deal.Status.AcceptingContributions() {
		return domain.Contribution{}, domain.State(domain.CodeDealNotOpen,
			"deal %s is not accepting contributions", c.DealID)
	}
	if deal.HardCap > 0 && deal.TotalRaised+c.AmountUsd > deal.HardCap {
		err := domain.Policy(domain.CodeExceedsHardCap,
			"contribution exceeds hard cap, %s USD remaining", domain.FormatMicro(deal.Remaining()))
		err.Remaining = deal.Remaining()
		return domain.Contribution{}, err
	}

	if f.countedPeers(c.DealID, c.UserID, c.ID) == 0 {
		deal.ContributorCount++
	}
	deal.TotalRaised += c.AmountUsd
	f.deals.deals[c.DealID] = deal
	f.byTx[c.TxHash] = c
	return c, nil
}

func (f *fakeContributionStore) GetByTxHash(_ context.Context, txHash string) (domain.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byTx[txHash]
	if !ok {
		return domain.Contribution{}, domain.NotFound("contribution %s not found", txHash)
	}
	return c, nil
}

func (f *fakeContributionStore) ListByDeal(_ context.Context, dealID string, _ domain.ListOpts) ([]domain.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Contribution
	for _, c := range f.byTx {
		if c.DealID == dealID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContributionStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Contribution
	for _, c := range f.byTx {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContributionStore) CountForUser(_ context.Context, dealID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.byTx {
		if c.DealID == dealID && c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeContributionStore) Confirm(_ context.Context, txHash string, blockNumber int64, confirmedAt time.Time) (domain.Contribution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.byTx[txHash]
	if !ok {
		return domain.Contribution{}, false, nil
	}
	if c.Status == domain.ContributionConfirmed {
		return c, false, nil
	}
	prior := c.Status

	c.Status = domain.ContributionConfirmed
	c.BlockNumber = &blockNumber
	c.ConfirmedAt = &confirmedAt
	f.byTx[txHash] = c

	f.deals.mu.Lock()
	deal := f.deals.deals[c.DealID]
	if prior == domain.ContributionFailed || prior == domain.ContributionRefunded {
		// Re-reserve aggregates released by the earlier failure.
		deal.TotalRaised += c.AmountUsd
		if f.countedPeers(c.DealID, c.UserID, c.ID) == 0 {
			deal.ContributorCount++
		}
	}
	f.deals.deals[c.DealID] = deal
	f.deals.mu.Unlock()

	f.users.credit(c.UserID, c.AmountUsd)
	return c, true, nil
}

func (f *fakeContributionStore) Fail(_ context.Context, txHash string) (domain.Contribution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.byTx[txHash]
	if !ok {
		return domain.Contribution{}, false, nil
	}
	if c.Status == domain.ContributionFailed || c.Status == domain.ContributionRefunded {
		return c, false, nil
	}
	prior := c.Status

	c.Status = domain.ContributionFailed
	f.byTx[txHash] = c
	f.releaseAggregates(c)
	if prior == domain.ContributionConfirmed {
		f.users.credit(c.UserID, -c.AmountUsd)
	}
	return c, true, nil
}

func (f *fakeContributionStore) Revert(_ context.Context, txHash string, flag domain.ComplianceFlag) (domain.Contribution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.byTx[txHash]
	if !ok {
		return domain.Contribution{}, false, nil
	}
	if c.Status != domain.ContributionConfirmed {
		return c, false, nil
	}

	c.Status = domain.ContributionFailed
	f.byTx[txHash] = c
	f.releaseAggregates(c)
	f.users.credit(c.UserID, -c.AmountUsd)

	flag.UserID = c.UserID
	flag.DealID = c.DealID
	f.flags = append(f.flags, flag)
	return c, true, nil
}

// releaseAggregates debits the deal's totals for a contribution leaving the
// counted set. Caller holds f.mu; the row's new status is already written.
func (f *fakeContributionStore) releaseAggregates(c domain.Contribution) {
	f.deals.mu.Lock()
	defer f.deals.mu.Unlock()
	deal := f.deals.deals[c.DealID]
	deal.TotalRaised -= c.AmountUsd
	if deal.TotalRaised < 0 {
		deal.TotalRaised = 0
	}
	if f.countedPeers(c.DealID, c.UserID, c.ID) == 0 && deal.ContributorCount > 0 {
		deal.ContributorCount--
	}
	f.deals.deals[c.DealID] = deal
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]domain.User)}
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.NotFound("user %s not found", id)
	}
	return u, nil
}

func (f *fakeUserStore) Upsert(_ context.Context, u domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) credit(id string, deltaUsd int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.TotalContributedUsd += deltaUsd
	f.users[id] = u
}

type fakeVestingStore struct {
	mu        sync.Mutex
	schedules map[string]domain.VestingSchedule // keyed user|deal
	claims    []domain.ClaimRecord
}

func newFakeVestingStore() *fakeVestingStore {
	return &fakeVestingStore{schedules: make(map[string]domain.VestingSchedule)}
}

func vestingKey(userID, dealID string) string { return userID + "|" + dealID }

func (f *fakeVestingStore) Create(_ context.Context, s domain.VestingSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[vestingKey(s.UserID, s.DealID)] = s
	return nil
}

func (f *fakeVestingStore) GetByUserAndDeal(_ context.Context, userID, dealID string) (domain.VestingSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[vestingKey(userID, dealID)]
	if !ok {
		return domain.VestingSchedule{}, domain.NotFound("no vesting schedule for user %s in deal %s", userID, dealID)
	}
	return s, nil
}

func (f *fakeVestingStore) ApplyClaim(_ context.Context, rec domain.ClaimRecord, expectedClaimed int64) (domain.VestingSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := vestingKey(rec.UserID, rec.DealID)
	s, ok := f.schedules[key]
	if !ok {
		return domain.VestingSchedule{}, domain.NotFound("no vesting schedule for user %s in deal %s", rec.UserID, rec.DealID)
	}
	if s.ClaimedAmount != expectedClaimed {
		return domain.VestingSchedule{}, domain.Conflict(domain.CodeConcurrentUpdate,
			"vesting schedule %s changed concurrently", s.ID)
	}
	s.ClaimedAmount += rec.Amount
	claimedAt := rec.ClaimedAt
	s.LastClaimAt = &claimedAt
	f.schedules[key] = s
	f.claims = append(f.claims, rec)
	return s, nil
}

type fakeNotificationStore struct {
	mu    sync.Mutex
	queue []domain.Notification
}

func (f *fakeNotificationStore) Enqueue(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, n)
	return nil
}

func (f *fakeNotificationStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.queue {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.queue {
		if f.queue[i].ID == id {
			f.queue[i].Read = true
			return nil
		}
	}
	return domain.NotFound("notification %s not found", id)
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.ProcessedEvent
}

func (f *fakeEventStore) Record(_ context.Context, e domain.ProcessedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.events) + 1)
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventStore) ListRecent(_ context.Context, limit int) ([]domain.ProcessedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]domain.ProcessedEvent, limit)
	copy(out, f.events[len(f.events)-limit:])
	return out, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{
		ID:        int64(len(f.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeAuditStore) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Event == event {
			n++
		}
	}
	return n
}

type fakePhaseStore struct {
	mu     sync.Mutex
	phases map[string][]domain.DealPhase
}

func newFakePhaseStore() *fakePhaseStore {
	return &fakePhaseStore{phases: make(map[string][]domain.DealPhase)}
}

func (f *fakePhaseStore) Replace(_ context.Context, dealID string, phases []domain.DealPhase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases[dealID] = phases
	return nil
}

func (f *fakePhaseStore) ListByDeal(_ context.Context, dealID string) ([]domain.DealPhase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phases[dealID], nil
}

type fakeSignalBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeSignalBus() *fakeSignalBus {
	return &fakeSignalBus{published: make(map[string][][]byte)}
}

func (f *fakeSignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeSignalBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeAlerter) Notify(_ context.Context, event, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, event+": "+title)
	return nil
}
