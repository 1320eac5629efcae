package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

var _ repository.AccountRepository = (*DB)(nil)

// CreateAccount writes profile 1, the phone mapping and the invite requests
// of a freshly signed-up user in one transaction.
func (db *DB) CreateAccount(ctx context.Context, a repository.NewAccount) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		profile := a.Profile
		if profile == nil {
			profile = &model.Profile{}
		}
		if err := putProfile(ctx, tx, a.UserID, model.DefaultProfileN, profile); err != nil {
			return err
		}

		if a.Phone != "" {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO phone_numbers (phone_number, user_id) VALUES (?, ?)
				 ON CONFLICT(phone_number) DO UPDATE SET user_id = excluded.user_id`,
				a.Phone, a.UserID,
			)
			if err != nil {
				return fmt.Errorf("sqlite: mapping phone number for %s: %w", a.UserID, err)
			}
		}

		for _, to := range a.Invites {
			if to == "" || to == a.UserID {
				continue
			}
			if err := putRequest(ctx, tx, a.UserID, model.DefaultProfileN, to); err != nil {
				return err
			}
		}
		return nil
	})
}
