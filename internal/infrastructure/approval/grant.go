package approval

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/plan"
)

var (
	ErrInvalidGrant = errors.New("invalid approval grant")
	ErrExpiredGrant = errors.New("approval grant has expired")
	ErrWrongPlan    = errors.New("approval grant was issued for a different plan")
)

// GrantClaims are the JWT claims of an approval grant
type GrantClaims struct {
	jwt.RegisteredClaims
	PlanID     string `json:"plan_id"`
	ApprovedBy string `json:"approved_by"`
	Note       string `json:"note,omitempty"`
}

// GrantConfig configures the grant service
type GrantConfig struct {
	// Secret signs grants; must be shared by issuer and redeemer
	Secret string
	// Issuer names this automator in the iss claim
	Issuer string
	// TTL bounds how long an issued grant can be redeemed
	TTL time.Duration
}

// GrantService issues and redeems signed approval grants. Grants are HS256
// tokens bound to exactly one plan, so a leaked link can never approve
// anything else.
type GrantService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewGrantService creates a grant service from cfg
func NewGrantService(cfg GrantConfig) *GrantService {
	return &GrantService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
	}
}

// Issue signs a grant for one plan
func (s *GrantService) Issue(planID uuid.UUID, approvedBy, note string) (string, error) {
	now := time.Now()
	claims := &GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   approvedBy,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		PlanID:     planID.String(),
		ApprovedBy: approvedBy,
		Note:       note,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Redeem validates a grant against the plan it should approve and converts
// it into an approval record. The approval inherits the grant's expiry.
func (s *GrantService) Redeem(tokenString string, planID uuid.UUID) (*plan.Approval, error) {
	token, err := jwt.ParseWithClaims(tokenString, &GrantClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidGrant
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredGrant
		}
		return nil, ErrInvalidGrant
	}

	claims, ok := token.Claims.(*GrantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidGrant
	}
	if claims.PlanID != planID.String() {
		return nil, ErrWrongPlan
	}
	if claims.ApprovedBy == "" {
		return nil, ErrInvalidGrant
	}

	a := &plan.Approval{
		PlanID:     planID,
		ApprovedBy: claims.ApprovedBy,
		Note:       claims.Note,
	}
	if claims.IssuedAt != nil {
		a.GrantedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		a.ExpiresAt = claims.ExpiresAt.Time
	}
	return a, nil
}
