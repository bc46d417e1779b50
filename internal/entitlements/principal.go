package entitlements

import (
	"strings"

	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/google/uuid"
)

// Principal is the user or anonymous session whose allowance is evaluated.
type Principal struct {
	Kind         enums.PrincipalKind
	UserID       uuid.UUID
	SessionToken string
}

func UserPrincipal(userID uuid.UUID) Principal {
	return Principal{Kind: enums.PrincipalKindUser, UserID: userID}
}

func SessionPrincipal(token string) Principal {
	return Principal{Kind: enums.PrincipalKindSession, SessionToken: strings.TrimSpace(token)}
}

func (p Principal) IsAnonymous() bool {
	return p.Kind == enums.PrincipalKindSession
}

// Key is the ledger key shared by records, holds and the principal lock.
func (p Principal) Key() string {
	if p.IsAnonymous() {
		return usage.SessionKey(p.SessionToken)
	}
	return usage.UserKey(p.UserID)
}

func (p Principal) validate() error {
	switch p.Kind {
	case enums.PrincipalKindUser:
		if p.UserID != uuid.Nil {
			return nil
		}
	case enums.PrincipalKindSession:
		if p.SessionToken != "" {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "no principal for request")
}

func (p Principal) userIDPtr() *uuid.UUID {
	if p.IsAnonymous() {
		return nil
	}
	id := p.UserID
	return &id
}

func (p Principal) sessionPtr() *string {
	if !p.IsAnonymous() {
		return nil
	}
	token := p.SessionToken
	return &token
}
