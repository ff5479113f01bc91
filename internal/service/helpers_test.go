package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/password"
	"github.com/adhikarisumit/lms-module/internal/session"
	"github.com/adhikarisumit/lms-module/internal/tokens"
)

const (
	testSuperEmail = "owner@example.com"
	testPassword   = "correct-horse-battery"
)

// mockNotifier — мок Notifier: запоминает сообщения, sendErr имитирует сбой очереди.
type mockNotifier struct {
	mu       sync.Mutex
	sendErr  error
	messages []notify.Message
}

func (m *mockNotifier) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

// SendAsync в тестах выполняется синхронно, ошибка игнорируется.
func (m *mockNotifier) SendAsync(msg notify.Message) {
	_ = m.Send(context.Background(), msg)
}

func (m *mockNotifier) last(kind notify.Kind) (notify.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Kind == kind {
			return m.messages[i], true
		}
	}
	return notify.Message{}, false
}

func (m *mockNotifier) count(kind notify.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testEnv — окружение сервисного слоя поверх memStore.
type testEnv struct {
	store     *memStore
	notifier  *mockNotifier
	hasher    *password.Hasher
	tokens    *tokens.Store
	redis     *miniredis.Miniredis
	authority *session.Authority
	accounts  *AccountService
	catalog   *CatalogService
	purchases *PurchaseService
	payments  *PaymentService
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() ошибка: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewHasher() ошибка: %v", err)
	}

	testKeyOnce.Do(func() {
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKey == nil {
		t.Fatalf("GenerateKey() ошибка: %v", err)
	}
	keys, err := session.NewKeySet(context.Background(), testKey)
	if err != nil {
		t.Fatalf("NewKeySet() ошибка: %v", err)
	}

	env := &testEnv{
		store:    newMemStore(),
		notifier: &mockNotifier{},
		hasher:   hasher,
		tokens:   tokens.NewStore(client, "test:token"),
		redis:    mr,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	logger := testLogger()
	repos := env.store.repos()

	env.authority = session.NewAuthority(repos.Accounts, hasher, nil, keys, session.Options{
		Issuer:          "lms-test",
		TTL:             time.Hour,
		SuperAdminEmail: testSuperEmail,
	}, logger)
	env.accounts = NewAccountService(repos, env.store, hasher, env.tokens, env.notifier, AccountOptions{
		SuperAdminEmail:  testSuperEmail,
		VerificationTTL:  time.Hour,
		PasswordResetTTL: time.Hour,
		Now:              clock,
	}, logger)
	env.catalog = NewCatalogService(repos, NewCatalogCache(100, time.Minute), "JPY", logger)
	env.purchases = NewPurchaseService(repos, env.store, env.catalog, env.notifier, clock, logger)
	env.payments = NewPaymentService(repos.Payments, logger)
	return env
}

// addAccount создаёт учётную запись с паролем testPassword и подтверждённым email.
func (e *testEnv) addAccount(t *testing.T, email, role string) *model.Account {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() ошибка: %v", err)
	}
	verified := e.now
	acc := &model.Account{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            "User " + email,
		PasswordHash:    &hash,
		Role:            role,
		EmailVerifiedAt: &verified,
	}
	if err := e.store.repos().Accounts.Create(context.Background(), acc); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	return acc
}

func (e *testEnv) account(t *testing.T, id string) *model.Account {
	t.Helper()
	acc, err := e.store.repos().Accounts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) ошибка: %v", id, err)
	}
	return acc
}

// identity возвращает Identity учётной записи так, как её видит middleware.
func (e *testEnv) identity(acc *model.Account) *session.Identity {
	return &session.Identity{
		AccountID:      acc.ID,
		Email:          acc.Email,
		Name:           acc.Name,
		Tier:           rbac.ResolveTier(acc.Role, acc.Email, testSuperEmail),
		SessionVersion: acc.SessionVersion,
	}
}

func (e *testEnv) addCourse(t *testing.T, price int64, months *int, published bool) *model.Course {
	t.Helper()
	c := &model.Course{
		ID:                   uuid.New().String(),
		Slug:                 "course-" + uuid.New().String()[:8],
		Title:                "Japanese N5",
		Price:                price,
		Currency:             "JPY",
		AccessDurationMonths: months,
		Published:            published,
	}
	if err := e.store.repos().Catalog.CreateCourse(context.Background(), c); err != nil {
		t.Fatalf("CreateCourse() ошибка: %v", err)
	}
	return c
}

func (e *testEnv) addResource(t *testing.T, price int64) *model.Resource {
	t.Helper()
	r := &model.Resource{
		ID:        uuid.New().String(),
		Slug:      "res-" + uuid.New().String()[:8],
		Title:     "Kanji deck",
		Price:     price,
		Currency:  "JPY",
		Published: true,
	}
	if err := e.store.repos().Catalog.CreateResource(context.Background(), r); err != nil {
		t.Fatalf("CreateResource() ошибка: %v", err)
	}
	return r
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
