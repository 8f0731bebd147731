package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mivir/steamgate/internal/model"
)

// PostgreSQLの一意制約違反エラーコード。
const pqUniqueViolation = "23505"

// accountsテーブルの制約名。マイグレーションの定義と一致させること。
const (
	constraintExternalID = "accounts_external_id_key"
	constraintLoginToken = "accounts_login_token_key"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByExternalID は外部識別子でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return r.findBy(ctx,
		`SELECT id, external_id, login_token, created_at, updated_at
		 FROM accounts
		 WHERE external_id = $1`,
		externalID,
	)
}

// FindByLoginToken はログイントークンでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByLoginToken(ctx context.Context, token string) (*model.Account, error) {
	return r.findBy(ctx,
		`SELECT id, external_id, login_token, created_at, updated_at
		 FROM accounts
		 WHERE login_token = $1`,
		token,
	)
}

// findBy は単一行検索の共通処理。
func (r *PostgresAccountRepo) findBy(ctx context.Context, query, arg string) (*model.Account, error) {
	account := &model.Account{}
	var token sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID, &account.ExternalID, &token, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if token.Valid {
		account.LoginToken = &token.String
	}
	return account, nil
}

// Create はアカウントを作成する。ログイントークンはNULLのまま挿入する。
// external_idの一意制約違反はmodel.ErrDuplicateIdentifierに変換する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, external_id, login_token, created_at, updated_at)
		 VALUES ($1, $2, NULL, $3, $4)`,
		account.ID, account.ExternalID, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintExternalID) {
			return model.ErrDuplicateIdentifier
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpdateLoginToken はアカウントのログイントークンを設定する。
// login_tokenの一意制約違反はmodel.ErrTokenConflictに変換する。
func (r *PostgresAccountRepo) UpdateLoginToken(ctx context.Context, accountID, token string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET login_token = $1, updated_at = now() WHERE id = $2`,
		token, accountID,
	)
	if err != nil {
		if isUniqueViolation(err, constraintLoginToken) {
			return model.ErrTokenConflict
		}
		return fmt.Errorf("failed to update login token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}
	return nil
}

// ClearLoginToken はアカウントのログイントークンをNULLにする。
// 該当アカウントが存在しない場合もエラーにはしない（冪等）。
func (r *PostgresAccountRepo) ClearLoginToken(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET login_token = NULL, updated_at = now() WHERE id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear login token: %w", err)
	}
	return nil
}

// isUniqueViolation はerrが指定制約の一意制約違反かどうかを判定する。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
