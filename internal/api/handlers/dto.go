// dto.go — структуры запросов и ответов API и маппинг из доменных моделей.
package handlers

import (
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/session"
	"github.com/adhikarisumit/lms-module/internal/service"
)

// --- Запросы ---

type registerRequest struct {
	Name     string              `json:"name"`
	Email    openapi_types.Email `json:"email"`
	Password string              `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email openapi_types.Email `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileUpdateRequest struct {
	Name  *string              `json:"name"`
	Email *openapi_types.Email `json:"email"`
}

func (p profileUpdateRequest) toService() service.ProfileUpdate {
	upd := service.ProfileUpdate{Name: p.Name}
	if p.Email != nil {
		email := string(*p.Email)
		upd.Email = &email
	}
	return upd
}

type banRequest struct {
	Reason string `json:"reason"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type verifiedRequest struct {
	Verified bool `json:"verified"`
}

type purchaseRequestCreate struct {
	ItemType string  `json:"item_type"`
	ItemID   string  `json:"item_id"`
	Message  *string `json:"message"`
}

type reviewRequest struct {
	Action string  `json:"action"`
	Note   *string `json:"note"`
}

type courseCreateRequest struct {
	Slug                 string `json:"slug"`
	Title                string `json:"title"`
	Price                int64  `json:"price"`
	Currency             string `json:"currency"`
	AccessDurationMonths *int   `json:"access_duration_months"`
	Published            bool   `json:"published"`
}

type resourceCreateRequest struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	Published bool   `json:"published"`
}

type publishRequest struct {
	Published bool `json:"published"`
}

// --- Ответы ---

type accountResponse struct {
	ID              openapi_types.UUID  `json:"id"`
	Email           openapi_types.Email `json:"email"`
	Name            string              `json:"name"`
	Role            string              `json:"role"`
	EmailVerified   bool                `json:"email_verified"`
	Banned          bool                `json:"banned"`
	BanReason       *string             `json:"ban_reason"`
	Frozen          bool                `json:"frozen"`
	ProfileVerified bool                `json:"profile_verified"`
	SessionVersion  int                 `json:"session_version"`
	CreatedAt       time.Time           `json:"created_at"`
}

type identityResponse struct {
	ID    openapi_types.UUID  `json:"id"`
	Email openapi_types.Email `json:"email"`
	Name  string              `json:"name"`
	Role  string              `json:"role"`
}

type sessionResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Identity    identityResponse `json:"identity"`
}

// profileResponse — профиль после изменения. Session заполняется,
// если изменение отозвало сессии и вызывающему выдан новый токен.
type profileResponse struct {
	Account accountResponse  `json:"account"`
	Session *sessionResponse `json:"session,omitempty"`
}

type purchaseRequestResponse struct {
	ID         openapi_types.UUID `json:"id"`
	UserID     openapi_types.UUID `json:"user_id"`
	ItemType   string             `json:"item_type"`
	ItemID     openapi_types.UUID `json:"item_id"`
	ItemTitle  string             `json:"item_title"`
	Amount     int64              `json:"amount"`
	Currency   string             `json:"currency"`
	Message    *string            `json:"message"`
	Status     string             `json:"status"`
	AdminNote  *string            `json:"admin_note"`
	ReviewedBy *string            `json:"reviewed_by"`
	ReviewedAt *time.Time         `json:"reviewed_at"`
	CreatedAt  time.Time          `json:"created_at"`
}

type reviewResponse struct {
	Request      purchaseRequestResponse `json:"request"`
	GrantCreated bool                    `json:"grant_created"`
	Payment      *paymentResponse        `json:"payment,omitempty"`
}

type courseResponse struct {
	ID                   openapi_types.UUID `json:"id"`
	Slug                 string             `json:"slug"`
	Title                string             `json:"title"`
	Price                int64              `json:"price"`
	Currency             string             `json:"currency"`
	AccessDurationMonths *int               `json:"access_duration_months"`
	Published            bool               `json:"published"`
	CreatedAt            time.Time          `json:"created_at"`
}

type resourceResponse struct {
	ID        openapi_types.UUID `json:"id"`
	Slug      string             `json:"slug"`
	Title     string             `json:"title"`
	Price     int64              `json:"price"`
	Currency  string             `json:"currency"`
	Published bool               `json:"published"`
	CreatedAt time.Time          `json:"created_at"`
}

type enrollmentResponse struct {
	ID         openapi_types.UUID `json:"id"`
	CourseID   openapi_types.UUID `json:"course_id"`
	EnrolledAt time.Time          `json:"enrolled_at"`
	ExpiresAt  *time.Time         `json:"expires_at"`
}

type resourcePurchaseResponse struct {
	ID          openapi_types.UUID `json:"id"`
	ResourceID  openapi_types.UUID `json:"resource_id"`
	Amount      int64              `json:"amount"`
	Currency    string             `json:"currency"`
	Status      string             `json:"status"`
	PurchasedAt time.Time          `json:"purchased_at"`
}

type grantsResponse struct {
	Enrollments       []enrollmentResponse       `json:"enrollments"`
	ResourcePurchases []resourcePurchaseResponse `json:"resource_purchases"`
}

type paymentResponse struct {
	ID                openapi_types.UUID `json:"id"`
	UserID            *string            `json:"user_id"`
	CourseID          *string            `json:"course_id"`
	PurchaseRequestID *string            `json:"purchase_request_id"`
	Amount            int64              `json:"amount"`
	Currency          string             `json:"currency"`
	Status            string             `json:"status"`
	Method            string             `json:"method"`
	CreatedAt         time.Time          `json:"created_at"`
}

type paymentTotalResponse struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Count    int    `json:"count"`
}

// --- Маппинг ---

// parseUUID разбирает идентификатор из БД. Некорректное значение даёт нулевой UUID.
func parseUUID(id string) openapi_types.UUID {
	u, _ := uuid.Parse(id)
	return u
}

func (h *APIHandler) mapAccount(acc *model.Account) accountResponse {
	return accountResponse{
		ID:              parseUUID(acc.ID),
		Email:           openapi_types.Email(acc.Email),
		Name:            acc.Name,
		Role:            h.sessions.TierOf(acc).String(),
		EmailVerified:   acc.IsEmailVerified(),
		Banned:          acc.Banned,
		BanReason:       acc.BanReason,
		Frozen:          acc.Frozen,
		ProfileVerified: acc.ProfileVerified,
		SessionVersion:  acc.SessionVersion,
		CreatedAt:       acc.CreatedAt,
	}
}

func mapSession(cred *session.Credential) sessionResponse {
	return sessionResponse{
		AccessToken: cred.Token,
		TokenType:   "Bearer",
		ExpiresAt:   cred.ExpiresAt,
		Identity: identityResponse{
			ID:    parseUUID(cred.Identity.AccountID),
			Email: openapi_types.Email(cred.Identity.Email),
			Name:  cred.Identity.Name,
			Role:  cred.Identity.Role(),
		},
	}
}

func mapPurchaseRequest(pr *model.PurchaseRequest) purchaseRequestResponse {
	return purchaseRequestResponse{
		ID:         parseUUID(pr.ID),
		UserID:     parseUUID(pr.UserID),
		ItemType:   pr.ItemType,
		ItemID:     parseUUID(pr.ItemID),
		ItemTitle:  pr.ItemTitle,
		Amount:     pr.Amount,
		Currency:   pr.Currency,
		Message:    pr.Message,
		Status:     pr.Status,
		AdminNote:  pr.AdminNote,
		ReviewedBy: pr.ReviewedBy,
		ReviewedAt: pr.ReviewedAt,
		CreatedAt:  pr.CreatedAt,
	}
}

func mapCourse(c *model.Course) courseResponse {
	return courseResponse{
		ID:                   parseUUID(c.ID),
		Slug:                 c.Slug,
		Title:                c.Title,
		Price:                c.Price,
		Currency:             c.Currency,
		AccessDurationMonths: c.AccessDurationMonths,
		Published:            c.Published,
		CreatedAt:            c.CreatedAt,
	}
}

func mapResource(r *model.Resource) resourceResponse {
	return resourceResponse{
		ID:        parseUUID(r.ID),
		Slug:      r.Slug,
		Title:     r.Title,
		Price:     r.Price,
		Currency:  r.Currency,
		Published: r.Published,
		CreatedAt: r.CreatedAt,
	}
}

func mapGrants(g *service.Grants) grantsResponse {
	resp := grantsResponse{
		Enrollments:       make([]enrollmentResponse, len(g.Enrollments)),
		ResourcePurchases: make([]resourcePurchaseResponse, len(g.ResourcePurchases)),
	}
	for i, e := range g.Enrollments {
		resp.Enrollments[i] = enrollmentResponse{
			ID:         parseUUID(e.ID),
			CourseID:   parseUUID(e.CourseID),
			EnrolledAt: e.EnrolledAt,
			ExpiresAt:  e.ExpiresAt,
		}
	}
	for i, p := range g.ResourcePurchases {
		resp.ResourcePurchases[i] = resourcePurchaseResponse{
			ID:          parseUUID(p.ID),
			ResourceID:  parseUUID(p.ResourceID),
			Amount:      p.Amount,
			Currency:    p.Currency,
			Status:      p.Status,
			PurchasedAt: p.PurchasedAt,
		}
	}
	return resp
}

func mapPayment(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:                parseUUID(p.ID),
		UserID:            p.UserID,
		CourseID:          p.CourseID,
		PurchaseRequestID: p.PurchaseRequestID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            p.Status,
		Method:            p.Method,
		CreatedAt:         p.CreatedAt,
	}
}

func mapReview(o *model.ReviewOutcome) reviewResponse {
	resp := reviewResponse{
		Request:      mapPurchaseRequest(o.Request),
		GrantCreated: o.GrantCreated,
	}
	if o.Payment != nil {
		p := mapPayment(o.Payment)
		resp.Payment = &p
	}
	return resp
}
