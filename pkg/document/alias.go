package document

import (
	"github.com/google/uuid"
)

// nullAliasNamespace seeds the name-based UUIDs of application-wide aliases.
var nullAliasNamespace = uuid.MustParse("6f1d5c4e-2b7a-4f0e-9d3c-8a1b2c3d4e5f")

// Alias is an application-scoped identity grouping documents under one name.
type Alias struct {
	ID            uuid.UUID `json:"id" firestore:"-"`
	ApplicationID string    `json:"pushApplicationId" firestore:"application_id"`
	Name          string    `json:"alias" firestore:"name"`
}

// NullAlias derives the application-wide identity for a request that named no
// alias. Every installation of the application shares it. It is a pure
// function of the application ID and is never persisted.
func NullAlias(applicationID string) Alias {
	return Alias{
		ID:            uuid.NewSHA1(nullAliasNamespace, []byte(applicationID)),
		ApplicationID: applicationID,
		Name:          NullAliasToken,
	}
}
