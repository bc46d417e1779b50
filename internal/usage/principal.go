package usage

import (
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/google/uuid"
)

// UserKey is the ledger key for an identified user.
func UserKey(userID uuid.UUID) string {
	return enums.PrincipalKindUser.String() + ":" + userID.String()
}

// SessionKey is the ledger key for an anonymous session.
func SessionKey(token string) string {
	return enums.PrincipalKindSession.String() + ":" + token
}
