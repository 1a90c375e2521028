package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"crmcore/internal/platform/models"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(org *models.Organization) error {
	org.ID = "org_" + uuid.New().String()
	org.CreatedAt = time.Now().Unix()
	org.UpdatedAt = org.CreatedAt
	if org.PlanTier == "" {
		org.PlanTier = models.PlanFree
	}

	_, err := r.db.Exec(`
		INSERT INTO organizations (id, slug, name, plan_tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, org.ID, org.Slug, org.Name, org.PlanTier, org.CreatedAt, org.UpdatedAt)
	return err
}

func (r *OrganizationRepository) GetByID(id string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRow(`
		SELECT id, slug, name, plan_tier, created_at, updated_at, deleted_at
		FROM organizations WHERE id = ?
	`, id).Scan(&org.ID, &org.Slug, &org.Name, &org.PlanTier, &org.CreatedAt, &org.UpdatedAt, &org.DeletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (r *OrganizationRepository) UpdatePlanTier(id, planTier string) error {
	_, err := r.db.Exec(`UPDATE organizations SET plan_tier = ?, updated_at = ? WHERE id = ?`,
		planTier, time.Now().Unix(), id)
	return err
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	user.ID = "usr_" + uuid.New().String()
	user.CreatedAt = time.Now().Unix()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO users (id, organization_id, email, password_hash, full_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.OrganizationID, user.Email, user.PasswordHash, user.FullName, user.Role, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	user := &models.User{}
	var lastLoginAt sql.NullInt64
	err := r.db.QueryRow(`
		SELECT id, organization_id, email, password_hash, full_name, role, last_login_at, created_at, updated_at
		FROM users WHERE email = ?
	`, email).Scan(&user.ID, &user.OrganizationID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &lastLoginAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Int64
	}
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(id string, timestamp int64) error {
	_, err := r.db.Exec(`UPDATE users SET last_login_at = ? WHERE id = ?`, timestamp, id)
	return err
}

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(account *models.Account) error {
	account.ID = "acc_" + uuid.New().String()
	account.CreatedAt = time.Now().Unix()
	account.UpdatedAt = account.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO accounts (id, organization_id, name, website, industry, owner_id, annual_revenue, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, account.ID, account.OrganizationID, account.Name, account.Website, account.Industry, account.OwnerID, account.AnnualRevenue, account.CreatedAt, account.UpdatedAt)
	return err
}

func (r *AccountRepository) GetByID(orgID, id string) (*models.Account, error) {
	account := &models.Account{}
	err := r.db.QueryRow(`
		SELECT id, organization_id, name, website, industry, owner_id, annual_revenue, created_at, updated_at
		FROM accounts WHERE organization_id = ? AND id = ?
	`, orgID, id).Scan(&account.ID, &account.OrganizationID, &account.Name, &account.Website, &account.Industry, &account.OwnerID, &account.AnnualRevenue, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) List(orgID string) ([]*models.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, name, website, industry, owner_id, annual_revenue, created_at, updated_at
		FROM accounts WHERE organization_id = ? ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		if err := rows.Scan(&account.ID, &account.OrganizationID, &account.Name, &account.Website, &account.Industry, &account.OwnerID, &account.AnnualRevenue, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) Update(account *models.Account) error {
	account.UpdatedAt = time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE accounts
		SET name = ?, website = ?, industry = ?, annual_revenue = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`, account.Name, account.Website, account.Industry, account.AnnualRevenue, account.UpdatedAt, account.OrganizationID, account.ID)
	return err
}

func (r *AccountRepository) Delete(orgID, id string) error {
	_, err := r.db.Exec(`DELETE FROM accounts WHERE organization_id = ? AND id = ?`, orgID, id)
	return err
}
