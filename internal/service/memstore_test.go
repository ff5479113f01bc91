package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/repository"
)

// memStore — in-memory реализация репозиториев и Transactor для unit-тестов.
// Транзакции выполняются последовательно (аналог блокировки строк),
// ошибка fn восстанавливает снимок данных (аналог отката).
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts          map[string]model.Account
	courses           map[string]model.Course
	resources         map[string]model.Resource
	enrollments       map[string]model.Enrollment
	resourcePurchases map[string]model.ResourcePurchase
	payments          []model.Payment
	requests          map[string]model.PurchaseRequest

	// Внедрение сбоев
	grantErr         error
	paymentErr       error
	accountUpdateErr error
	// commitErr имитирует сбой COMMIT после успешного fn
	commitErr error

	// Счётчики обращений к каталогу (для проверки кэша)
	courseReads   int
	resourceReads int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:          make(map[string]model.Account),
		courses:           make(map[string]model.Course),
		resources:         make(map[string]model.Resource),
		enrollments:       make(map[string]model.Enrollment),
		resourcePurchases: make(map[string]model.ResourcePurchase),
		requests:          make(map[string]model.PurchaseRequest),
	}
}

type memSnapshot struct {
	accounts          map[string]model.Account
	courses           map[string]model.Course
	resources         map[string]model.Resource
	enrollments       map[string]model.Enrollment
	resourcePurchases map[string]model.ResourcePurchase
	payments          []model.Payment
	requests          map[string]model.PurchaseRequest
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		accounts:          copyMap(s.accounts),
		courses:           copyMap(s.courses),
		resources:         copyMap(s.resources),
		enrollments:       copyMap(s.enrollments),
		resourcePurchases: copyMap(s.resourcePurchases),
		payments:          append([]model.Payment(nil), s.payments...),
		requests:          copyMap(s.requests),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.courses = snap.courses
	s.resources = snap.resources
	s.enrollments = snap.enrollments
	s.resourcePurchases = snap.resourcePurchases
	s.payments = snap.payments
	s.requests = snap.requests
}

func (s *memStore) repos() *repository.Repositories {
	return &repository.Repositories{
		Accounts:  &memAccounts{s},
		Catalog:   &memCatalog{s},
		Grants:    &memGrants{s},
		Payments:  &memPayments{s},
		Purchases: &memPurchases{s},
	}
}

// InTx реализует Transactor.
func (s *memStore) InTx(_ context.Context, fn func(repos *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s.repos()); err != nil {
		s.restore(snap)
		return err
	}
	if s.commitErr != nil {
		s.restore(snap)
		return s.commitErr
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// --- accounts ---

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(_ context.Context, a *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *memAccounts) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *memAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccounts) filtered(filter model.AccountFilter) []*model.Account {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Account
	for _, a := range r.s.accounts {
		if filter.Role != nil && a.Role != *filter.Role {
			continue
		}
		if filter.Banned != nil && a.Banned != *filter.Banned {
			continue
		}
		if filter.Search != nil {
			q := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(a.Email), q) && !strings.Contains(strings.ToLower(a.Name), q) {
				continue
			}
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (r *memAccounts) List(_ context.Context, filter model.AccountFilter, limit, offset int) ([]*model.Account, error) {
	return page(r.filtered(filter), limit, offset), nil
}

func (r *memAccounts) Count(_ context.Context, filter model.AccountFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *memAccounts) Update(_ context.Context, a *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.accountUpdateErr != nil {
		return r.s.accountUpdateErr
	}
	current, ok := r.s.accounts[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, other := range r.s.accounts {
		if id != a.ID && strings.EqualFold(other.Email, a.Email) {
			return repository.ErrConflict
		}
	}
	updated := *a
	updated.SessionVersion = current.SessionVersion
	updated.UpdatedAt = time.Now().UTC()
	r.s.accounts[a.ID] = updated
	return nil
}

func (r *memAccounts) IncrementSessionVersion(_ context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	a.SessionVersion++
	r.s.accounts[id] = a
	return a.SessionVersion, nil
}

func (r *memAccounts) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.accounts, id)

	// Правила внешних ключей: CASCADE для доступов и заявок, SET NULL для платежей
	for k, e := range r.s.enrollments {
		if e.UserID == id {
			delete(r.s.enrollments, k)
		}
	}
	for k, p := range r.s.resourcePurchases {
		if p.UserID == id {
			delete(r.s.resourcePurchases, k)
		}
	}
	for k, pr := range r.s.requests {
		if pr.UserID == id {
			delete(r.s.requests, k)
			continue
		}
		if pr.ReviewedBy != nil && *pr.ReviewedBy == id {
			pr.ReviewedBy = nil
			r.s.requests[k] = pr
		}
	}
	for i := range r.s.payments {
		if r.s.payments[i].UserID != nil && *r.s.payments[i].UserID == id {
			r.s.payments[i].UserID = nil
		}
	}
	return nil
}

// --- catalog ---

type memCatalog struct{ s *memStore }

func (r *memCatalog) CreateCourse(_ context.Context, c *model.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.courses {
		if existing.Slug == c.Slug {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.courses[c.ID] = *c
	return nil
}

func (r *memCatalog) GetCourse(_ context.Context, id string) (*model.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.courseReads++
	c, ok := r.s.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *memCatalog) courseList(publishedOnly bool) []*model.Course {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Course
	for _, c := range r.s.courses {
		if publishedOnly && !c.Published {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (r *memCatalog) ListCourses(_ context.Context, publishedOnly bool, limit, offset int) ([]*model.Course, error) {
	return page(r.courseList(publishedOnly), limit, offset), nil
}

func (r *memCatalog) CountCourses(_ context.Context, publishedOnly bool) (int, error) {
	return len(r.courseList(publishedOnly)), nil
}

func (r *memCatalog) CreateResource(_ context.Context, res *model.Resource) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.resources {
		if existing.Slug == res.Slug {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now
	r.s.resources[res.ID] = *res
	return nil
}

func (r *memCatalog) GetResource(_ context.Context, id string) (*model.Resource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.resourceReads++
	res, ok := r.s.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r *memCatalog) resourceList(publishedOnly bool) []*model.Resource {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Resource
	for _, res := range r.s.resources {
		if publishedOnly && !res.Published {
			continue
		}
		res := res
		out = append(out, &res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (r *memCatalog) ListResources(_ context.Context, publishedOnly bool, limit, offset int) ([]*model.Resource, error) {
	return page(r.resourceList(publishedOnly), limit, offset), nil
}

func (r *memCatalog) CountResources(_ context.Context, publishedOnly bool) (int, error) {
	return len(r.resourceList(publishedOnly)), nil
}

func (r *memCatalog) SetPublished(_ context.Context, itemType, id string, published bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	switch itemType {
	case model.ItemTypeCourse:
		c, ok := r.s.courses[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.Published = published
		r.s.courses[id] = c
	case model.ItemTypeResource:
		res, ok := r.s.resources[id]
		if !ok {
			return repository.ErrNotFound
		}
		res.Published = published
		r.s.resources[id] = res
	}
	return nil
}

// --- grants ---

type memGrants struct{ s *memStore }

func grantKey(userID, itemID string) string {
	return userID + "|" + itemID
}

func (r *memGrants) HasEnrollment(_ context.Context, userID, courseID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.enrollments[grantKey(userID, courseID)]
	return ok, nil
}

func (r *memGrants) HasCompletedResourcePurchase(_ context.Context, userID, resourceID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.resourcePurchases[grantKey(userID, resourceID)]
	return ok && p.Status == model.ResourcePurchaseCompleted, nil
}

func (r *memGrants) GrantEnrollment(_ context.Context, e *model.Enrollment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.grantErr != nil {
		return false, r.s.grantErr
	}
	key := grantKey(e.UserID, e.CourseID)
	if _, ok := r.s.enrollments[key]; ok {
		return false, nil
	}
	r.s.enrollments[key] = *e
	return true, nil
}

func (r *memGrants) GrantResourcePurchase(_ context.Context, p *model.ResourcePurchase) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.grantErr != nil {
		return false, r.s.grantErr
	}
	key := grantKey(p.UserID, p.ResourceID)
	if existing, ok := r.s.resourcePurchases[key]; ok {
		if existing.Status == model.ResourcePurchaseCompleted {
			return false, nil
		}
		existing.Status = model.ResourcePurchaseCompleted
		existing.Amount, existing.Currency, existing.PurchasedAt = p.Amount, p.Currency, p.PurchasedAt
		r.s.resourcePurchases[key] = existing
		return true, nil
	}
	r.s.resourcePurchases[key] = *p
	return true, nil
}

func (r *memGrants) ListEnrollments(_ context.Context, userID string) ([]*model.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Enrollment
	for _, e := range r.s.enrollments {
		if e.UserID == userID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memGrants) ListResourcePurchases(_ context.Context, userID string) ([]*model.ResourcePurchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ResourcePurchase
	for _, p := range r.s.resourcePurchases {
		if p.UserID == userID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

// --- payments ---

type memPayments struct{ s *memStore }

func (r *memPayments) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.paymentErr != nil {
		return r.s.paymentErr
	}
	r.s.payments = append(r.s.payments, *p)
	return nil
}

func (r *memPayments) filtered(filter model.PaymentFilter) []*model.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Payment
	for i := len(r.s.payments) - 1; i >= 0; i-- {
		p := r.s.payments[i]
		if filter.UserID != nil && (p.UserID == nil || *p.UserID != *filter.UserID) {
			continue
		}
		if filter.CourseID != nil && (p.CourseID == nil || *p.CourseID != *filter.CourseID) {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, &p)
	}
	return out
}

func (r *memPayments) List(_ context.Context, filter model.PaymentFilter, limit, offset int) ([]*model.Payment, error) {
	return page(r.filtered(filter), limit, offset), nil
}

func (r *memPayments) Count(_ context.Context, filter model.PaymentFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *memPayments) Summary(_ context.Context) ([]model.PaymentTotal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	totals := make(map[string]*model.PaymentTotal)
	for _, p := range r.s.payments {
		if p.Status != model.PaymentStatusCompleted {
			continue
		}
		t, ok := totals[p.Currency]
		if !ok {
			t = &model.PaymentTotal{Currency: p.Currency}
			totals[p.Currency] = t
		}
		t.Amount += p.Amount
		t.Count++
	}
	out := make([]model.PaymentTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// --- purchase requests ---

type memPurchases struct{ s *memStore }

func (r *memPurchases) Create(_ context.Context, pr *model.PurchaseRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.requests[pr.ID] = *pr
	return nil
}

func (r *memPurchases) GetByID(_ context.Context, id string) (*model.PurchaseRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &pr, nil
}

func (r *memPurchases) GetByIDForUpdate(ctx context.Context, id string) (*model.PurchaseRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *memPurchases) filtered(filter model.PurchaseRequestFilter) []*model.PurchaseRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.PurchaseRequest
	for _, pr := range r.s.requests {
		if filter.Status != nil && pr.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && pr.UserID != *filter.UserID {
			continue
		}
		if filter.ItemType != nil && pr.ItemType != *filter.ItemType {
			continue
		}
		pr := pr
		out = append(out, &pr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memPurchases) List(_ context.Context, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, error) {
	return page(r.filtered(filter), limit, offset), nil
}

func (r *memPurchases) Count(_ context.Context, filter model.PurchaseRequestFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *memPurchases) SetReview(_ context.Context, id, status, reviewerID string, note *string, reviewedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if pr.Status != model.PurchaseStatusPending {
		return repository.ErrConflict
	}
	pr.Status = status
	pr.ReviewedBy = &reviewerID
	pr.AdminNote = note
	pr.ReviewedAt = &reviewedAt
	r.s.requests[id] = pr
	return nil
}

func (r *memPurchases) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.requests, id)
	return nil
}

func (r *memPurchases) DeletePending(_ context.Context, id, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.requests[id]
	if !ok || pr.UserID != userID || pr.Status != model.PurchaseStatusPending {
		return false, nil
	}
	delete(r.s.requests, id)
	return true, nil
}
