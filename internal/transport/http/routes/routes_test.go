package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/repository"
	"github.com/arklim/exam-bank-service/internal/repository/memory"
	"github.com/arklim/exam-bank-service/internal/transport/http/middleware"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

type mapUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMapUserRepo() *mapUserRepo {
	return &mapUserRepo{users: make(map[string]domain.User)}
}

func (r *mapUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *mapUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *mapUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mapUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	r.users[id] = user
	return nil
}

func (r *mapUserRepo) CountByRole(_ context.Context, role domain.UserRole) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, user := range r.users {
		if user.Role == role {
			count++
		}
	}
	return count, nil
}

var _ port.UserRepository = (*mapUserRepo)(nil)

type mapQuestionRepo struct {
	mu        sync.Mutex
	questions map[string]domain.Question
}

func newMapQuestionRepo() *mapQuestionRepo {
	return &mapQuestionRepo{questions: make(map[string]domain.Question)}
}

func (r *mapQuestionRepo) Create(_ context.Context, question domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[question.ID] = question
	return nil
}

func (r *mapQuestionRepo) GetByID(_ context.Context, id string) (*domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	question, ok := r.questions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &question, nil
}

func (r *mapQuestionRepo) List(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]domain.Question, 0, len(r.questions))
	for _, q := range r.questions {
		if filter.Subject != "" && q.Subject != filter.Subject {
			continue
		}
		if filter.Year != "" && q.Year != filter.Year {
			continue
		}
		if filter.QuestionNumber != nil && q.QuestionNumber != *filter.QuestionNumber {
			continue
		}
		results = append(results, q)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (r *mapQuestionRepo) Update(_ context.Context, question domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[question.ID]; !ok {
		return repository.ErrNotFound
	}
	r.questions[question.ID] = question
	return nil
}

func (r *mapQuestionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.questions, id)
	return nil
}

var _ port.QuestionRepository = (*mapQuestionRepo)(nil)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) SendVerificationCode(_ context.Context, email, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
	return nil
}

func (s *captureSender) codeFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

var _ port.NotificationSender = (*captureSender)(nil)

type noopEvents struct{}

func (noopEvents) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error { return nil }
func (noopEvents) PublishEmailVerified(context.Context, domain.EmailVerifiedEvent) error  { return nil }
func (noopEvents) PublishQuestionCreated(context.Context, domain.QuestionChangedEvent) error {
	return nil
}
func (noopEvents) PublishQuestionUpdated(context.Context, domain.QuestionChangedEvent) error {
	return nil
}
func (noopEvents) PublishQuestionDeleted(context.Context, domain.QuestionChangedEvent) error {
	return nil
}

var _ port.EventPublisher = noopEvents{}

type routerEnv struct {
	router *gin.Engine
	sender *captureSender
	users  *mapUserRepo
	auth   *usecase.AuthService
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)

	cfg := &config.AppConfig{
		App: config.AppSettings{Name: "exam-bank-service", Env: "test"},
		JWT: config.JWTSettings{Secret: "routes-test-secret", AccessTokenTTL: time.Hour},
		RateLimit: config.RateLimitSettings{
			WindowDuration:   time.Minute,
			LoginMaxAttempts: 100,
		},
	}

	users := newMapUserRepo()
	sender := newCaptureSender()
	events := noopEvents{}
	verifications := memory.NewVerificationStore(10 * time.Minute)

	otpService := usecase.NewOTPService(
		config.OTPSettings{},
		memory.NewOTPStore(),
		memory.NewRateLimitStore(),
		verifications,
		sender,
		events,
		log,
	)
	authService := usecase.NewAuthService(cfg, users, log)
	registrationService := usecase.NewRegistrationService(users, verifications, events, nil, log)
	questionService := usecase.NewQuestionService(newMapQuestionRepo(), events, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	router := Register(Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(memory.NewRateLimitStore(), log),
		Metrics:     metrics,
		Services: ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			OTP:          otpService,
			Questions:    questionService,
		},
		Users: users,
	})

	return &routerEnv{router: router, sender: sender, users: users, auth: authService}
}

func (env *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthAndReadinessEndpoints(t *testing.T) {
	env := newRouterEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
}

func TestRegistrationFlow(t *testing.T) {
	env := newRouterEnv(t)
	email := "student@example.com"

	rr := env.do(t, http.MethodPost, "/api/v1/otp/send", "", map[string]string{"email": email})
	if rr.Code != http.StatusOK {
		t.Fatalf("otp send: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	code := env.sender.codeFor(email)
	if code == "" {
		t.Fatal("expected a verification code to be dispatched")
	}

	rr = env.do(t, http.MethodPost, "/api/v1/otp/verify", "", map[string]string{"email": email, "otp": code})
	if rr.Code != http.StatusOK {
		t.Fatalf("otp verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	register := map[string]string{
		"fullName": "Exam Student",
		"email":    email,
		"password": "correct-Horse-battery-42!",
	}
	rr = env.do(t, http.MethodPost, "/api/v1/auth/register", "", register)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "correct-Horse-battery-42!",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var login struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	decodeJSON(t, rr, &login)
	if login.Token == "" {
		t.Fatal("expected a token in login response")
	}
	if login.User.Role != "user" {
		t.Fatalf("expected role user, got %q", login.User.Role)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOTPSendRejectsRegisteredEmail(t *testing.T) {
	env := newRouterEnv(t)

	existing := domain.User{
		ID:           "user-1",
		FullName:     "Registered User",
		Email:        "taken@example.com",
		Role:         domain.RoleUser,
		RegisteredAt: time.Now().UTC(),
	}
	if err := env.users.Create(context.Background(), existing); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/api/v1/otp/send", "", map[string]string{"email": existing.Email})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOTPVerifyRejectsBlankInput(t *testing.T) {
	env := newRouterEnv(t)

	cases := []map[string]string{
		{"email": "   ", "otp": " "},
		{"email": "student@example.com", "otp": "  "},
		{"email": "\t", "otp": "123456"},
	}
	for _, body := range cases {
		rr := env.do(t, http.MethodPost, "/api/v1/otp/verify", "", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("verify %v: expected 400, got %d: %s", body, rr.Code, rr.Body.String())
		}
	}
}

func TestRegisterWithoutVerificationForbidden(t *testing.T) {
	env := newRouterEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"fullName": "Unverified User",
		"email":    "unverified@example.com",
		"password": "correct-Horse-battery-42!",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestQuestionEndpointsEnforceRoles(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	admin := domain.User{
		ID:           "admin-1",
		FullName:     "Admin",
		Email:        "admin@example.com",
		Role:         domain.RoleAdmin,
		RegisteredAt: time.Now().UTC(),
	}
	student := domain.User{
		ID:           "student-1",
		FullName:     "Student",
		Email:        "student@example.com",
		Role:         domain.RoleUser,
		RegisteredAt: time.Now().UTC(),
	}
	for _, user := range []domain.User{admin, student} {
		if err := env.users.Create(ctx, user); err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}

	adminToken, err := env.auth.IssueToken(ctx, admin)
	if err != nil {
		t.Fatalf("failed to issue admin token: %v", err)
	}
	studentToken, err := env.auth.IssueToken(ctx, student)
	if err != nil {
		t.Fatalf("failed to issue student token: %v", err)
	}

	payload := map[string]any{
		"subject":        "Taxation",
		"examType":       "MTP",
		"year":           "2024",
		"month":          "March",
		"group":          "Group I",
		"paperName":      "Paper 01",
		"questionNumber": 4,
		"questionText":   "Explain the residential status rules.",
	}

	rr := env.do(t, http.MethodPost, "/api/v1/questions", "", payload)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: expected 401, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/questions", studentToken, payload)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("student create: expected 403, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/questions", adminToken, payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
	}
	decodeJSON(t, rr, &created)
	if created.ID == "" {
		t.Fatal("expected created question to carry an ID")
	}

	rr = env.do(t, http.MethodGet, "/api/v1/questions?subject=Taxation", studentToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("student list: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var listed []struct {
		ID string `json:"id"`
	}
	decodeJSON(t, rr, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 question, got %d", len(listed))
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/questions/%s", created.ID), studentToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("student get: expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/questions/%s", created.ID), studentToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("student delete: expected 403, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/questions/%s", created.ID), adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin delete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
