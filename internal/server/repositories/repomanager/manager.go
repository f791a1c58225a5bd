package repomanager

import (
	"context"
	"database/sql"

	"github.com/driftletter/driftletter/internal/dbx"
	"github.com/driftletter/driftletter/internal/server/repositories/letters"
	"github.com/driftletter/driftletter/internal/server/repositories/submissions"
	"github.com/driftletter/driftletter/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run a group of repository calls either directly against
// the pool or inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Letters(db dbx.DBTX) letters.Repository
	Submissions(db dbx.DBTX) submissions.Repository
}
