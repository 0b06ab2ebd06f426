package postgres

import (
	"context"
	"fmt"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/db"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
)

const clientColumns = `id::text, tenant_id, name, COALESCE(email, ''), portal_token, active`

func (t *txn) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	err := t.tx.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.PortalToken, &c.Active)
	return c, mapErr(err, "client", id)
}

func (t *txn) GetClientByPortalToken(ctx context.Context, token string) (model.Client, error) {
	var c model.Client
	err := t.tx.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE portal_token = $1 AND active`, token).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.PortalToken, &c.Active)
	if db.IsNotFound(err) {
		// The token is a credential: never echo it back.
		return model.Client{}, fmt.Errorf("%w: portal token", apperr.ErrNotFound)
	}
	return c, err
}
