package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adhikarisumit/lms-module/internal/api/middleware"
	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/service"
	"github.com/adhikarisumit/lms-module/internal/session"
)

const (
	superAdminEmail = "owner@example.com"
	studentID       = "7d1c6f0e-3c55-4a0f-9a53-6c1f2a3b4c5d"
	adminID         = "0b8e2f4a-9d61-4c1e-8f3a-2b7c5d9e1f20"
	requestID       = "c3a9e8d2-5b71-4f6e-a0d4-9e8f7a6b5c4d"
	courseID        = "5f4e3d2c-1b0a-4c9d-8e7f-6a5b4c3d2e1f"
)

var fixedTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Моки: встроенный интерфейс, переопределяются только нужные методы ---

type fakeSessions struct {
	Sessions
	authenticate func(ctx context.Context, email, password, ip string) (*session.Credential, error)
	refresh      func(ctx context.Context, token string) (*session.Credential, error)
	issued       []*model.Account
}

func (f *fakeSessions) Authenticate(ctx context.Context, email, password, ip string) (*session.Credential, error) {
	return f.authenticate(ctx, email, password, ip)
}

func (f *fakeSessions) Refresh(ctx context.Context, token string) (*session.Credential, error) {
	return f.refresh(ctx, token)
}

func (f *fakeSessions) Issue(acc *model.Account) (*session.Credential, error) {
	f.issued = append(f.issued, acc)
	return credentialFor(acc, "reissued-token"), nil
}

func (f *fakeSessions) JWKS(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"keys":[{"kty":"RSA","kid":"k1"}]}`), nil
}

func (f *fakeSessions) TierOf(acc *model.Account) rbac.Tier {
	return rbac.ResolveTier(acc.Role, acc.Email, superAdminEmail)
}

type fakeAccounts struct {
	Accounts
	get           func(ctx context.Context, id string) (*model.Account, error)
	register      func(ctx context.Context, name, email, pass string) (*model.Account, error)
	updateProfile func(ctx context.Context, id string, upd service.ProfileUpdate) (*model.Account, error)
	changePw      func(ctx context.Context, id, current, next string) (*model.Account, error)
	ban           func(ctx context.Context, actor *session.Identity, id, reason string) (*model.Account, error)
	list          func(ctx context.Context, actor *session.Identity, f model.AccountFilter, limit, offset int) ([]*model.Account, int, error)
	signOut       func(ctx context.Context, id string) (int, error)
}

func (f *fakeAccounts) Get(ctx context.Context, id string) (*model.Account, error) {
	return f.get(ctx, id)
}

func (f *fakeAccounts) Register(ctx context.Context, name, email, pass string) (*model.Account, error) {
	return f.register(ctx, name, email, pass)
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, id string, upd service.ProfileUpdate) (*model.Account, error) {
	return f.updateProfile(ctx, id, upd)
}

func (f *fakeAccounts) ChangePassword(ctx context.Context, id, current, next string) (*model.Account, error) {
	return f.changePw(ctx, id, current, next)
}

func (f *fakeAccounts) Ban(ctx context.Context, actor *session.Identity, id, reason string) (*model.Account, error) {
	return f.ban(ctx, actor, id, reason)
}

func (f *fakeAccounts) ListAccounts(ctx context.Context, actor *session.Identity, filter model.AccountFilter, limit, offset int) ([]*model.Account, int, error) {
	return f.list(ctx, actor, filter, limit, offset)
}

func (f *fakeAccounts) SignOutEverywhere(ctx context.Context, id string) (int, error) {
	return f.signOut(ctx, id)
}

type fakePurchases struct {
	Purchases
	create   func(ctx context.Context, requesterID, itemType, itemID string, msg *string) (*model.PurchaseRequest, error)
	review   func(ctx context.Context, reviewer *session.Identity, id, action string, note *string) (*model.ReviewOutcome, error)
	get      func(ctx context.Context, actor *session.Identity, id string) (*model.PurchaseRequest, error)
	cancel   func(ctx context.Context, requesterID, id string) error
	listMine func(ctx context.Context, requesterID string, limit, offset int) ([]*model.PurchaseRequest, int, error)
	list     func(ctx context.Context, actor *session.Identity, f model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, int, error)
}

func (f *fakePurchases) Create(ctx context.Context, requesterID, itemType, itemID string, msg *string) (*model.PurchaseRequest, error) {
	return f.create(ctx, requesterID, itemType, itemID, msg)
}

func (f *fakePurchases) Review(ctx context.Context, reviewer *session.Identity, id, action string, note *string) (*model.ReviewOutcome, error) {
	return f.review(ctx, reviewer, id, action, note)
}

func (f *fakePurchases) Get(ctx context.Context, actor *session.Identity, id string) (*model.PurchaseRequest, error) {
	return f.get(ctx, actor, id)
}

func (f *fakePurchases) Cancel(ctx context.Context, requesterID, id string) error {
	return f.cancel(ctx, requesterID, id)
}

func (f *fakePurchases) ListMine(ctx context.Context, requesterID string, limit, offset int) ([]*model.PurchaseRequest, int, error) {
	return f.listMine(ctx, requesterID, limit, offset)
}

func (f *fakePurchases) List(ctx context.Context, actor *session.Identity, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, int, error) {
	return f.list(ctx, actor, filter, limit, offset)
}

type fakeCatalog struct {
	Catalog
	listCourses  func(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Course, int, error)
	setPublished func(ctx context.Context, actor *session.Identity, itemType, id string, published bool) error
	listGrants   func(ctx context.Context, userID string) (*service.Grants, error)
	getCourse    func(ctx context.Context, id string, includeUnpublished bool) (*model.Course, error)
}

func (f *fakeCatalog) GetCourse(ctx context.Context, id string, includeUnpublished bool) (*model.Course, error) {
	return f.getCourse(ctx, id, includeUnpublished)
}

func (f *fakeCatalog) ListCourses(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Course, int, error) {
	return f.listCourses(ctx, includeUnpublished, limit, offset)
}

func (f *fakeCatalog) SetPublished(ctx context.Context, actor *session.Identity, itemType, id string, published bool) error {
	return f.setPublished(ctx, actor, itemType, id, published)
}

func (f *fakeCatalog) ListGrants(ctx context.Context, userID string) (*service.Grants, error) {
	return f.listGrants(ctx, userID)
}

type fakePayments struct {
	Payments
	summary func(ctx context.Context, actor *session.Identity) ([]model.PaymentTotal, error)
}

func (f *fakePayments) Summary(ctx context.Context, actor *session.Identity) ([]model.PaymentTotal, error) {
	return f.summary(ctx, actor)
}

// --- Окружение ---

type testEnv struct {
	handler   *APIHandler
	sessions  *fakeSessions
	accounts  *fakeAccounts
	purchases *fakePurchases
	catalog   *fakeCatalog
	payments  *fakePayments
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sessions:  &fakeSessions{},
		accounts:  &fakeAccounts{},
		purchases: &fakePurchases{},
		catalog:   &fakeCatalog{},
		payments:  &fakePayments{},
	}
	env.handler = NewAPIHandler(NewHealthHandler(nil, nil), env.sessions, env.accounts,
		env.purchases, env.catalog, env.payments, testLogger())
	return env
}

func studentAccount() *model.Account {
	verified := fixedTime
	return &model.Account{
		ID:              studentID,
		Email:           "taro@example.com",
		Name:            "Taro",
		Role:            model.RoleStudent,
		SessionVersion:  1,
		EmailVerifiedAt: &verified,
		CreatedAt:       fixedTime,
	}
}

func studentIdentity() *session.Identity {
	return &session.Identity{AccountID: studentID, Email: "taro@example.com", Name: "Taro", Tier: rbac.TierStudent, SessionVersion: 1}
}

func adminIdentity() *session.Identity {
	return &session.Identity{AccountID: adminID, Email: "admin@example.com", Name: "Admin", Tier: rbac.TierAdmin, SessionVersion: 4}
}

func credentialFor(acc *model.Account, token string) *session.Credential {
	return &session.Credential{
		Token:     token,
		ExpiresAt: fixedTime.Add(720 * time.Hour),
		Identity: &session.Identity{
			AccountID:      acc.ID,
			Email:          acc.Email,
			Name:           acc.Name,
			Tier:           rbac.ResolveTier(acc.Role, acc.Email, superAdminEmail),
			SessionVersion: acc.SessionVersion,
		},
	}
}

func pendingRequest() *model.PurchaseRequest {
	return &model.PurchaseRequest{
		ID:        requestID,
		UserID:    studentID,
		ItemType:  model.ItemTypeCourse,
		ItemID:    courseID,
		ItemTitle: "Go для начинающих",
		Amount:    12000,
		Currency:  "JPY",
		Status:    model.PurchaseStatusPending,
		CreatedAt: fixedTime,
	}
}

// newRequest создаёт запрос с JSON-телом, Identity и параметром пути {id}.
func newRequest(method, target, body string, identity *session.Identity, pathID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
	}
	if pathID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", pathID)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

// errorCode извлекает код ошибки из JSON-ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("ответ не является JSON-ошибкой: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v (%s)", err, rec.Body.String())
	}
}
