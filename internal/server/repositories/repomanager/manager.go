package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/smscodes"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a connection or transaction,
// so services can compose several of them inside one dbx.TxFunc.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	SMSCodes(db dbx.DBTX) smscodes.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
