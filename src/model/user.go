package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUsernameTaken is returned when a username already exists.
var ErrUsernameTaken = errors.New("username already taken")

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	IsAdmin     bool      `json:"is_admin"`
	MfaSecret   string    `json:"-"`
	MfaEnabled  bool      `json:"mfa_enabled"`
	LoginCount  int       `json:"login_count"`
	LastLoginAt NullTime  `json:"last_login_at"`
	LastLoginIP string    `json:"last_login_ip"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NullTime is an alias for sql.NullTime for better JSON handling if needed.
type NullTime sql.NullTime

func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return nt.Time.MarshalJSON()
}

const userColumns = `id, username, email, password, is_admin, mfa_secret, mfa_enabled,
	       login_count, last_login_at, last_login_ip, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var mfaSecret, lastLoginIP sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Password, &user.IsAdmin,
		&mfaSecret, &user.MfaEnabled, &user.LoginCount, &lastLoginAt, &lastLoginIP,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.MfaSecret = mfaSecret.String
	user.LastLoginAt = NullTime(lastLoginAt)
	user.LastLoginIP = lastLoginIP.String
	return &user, nil
}

// CreateUser inserts u, whose Password must already be a bcrypt hash.
func (u *User) CreateUser(db *sql.DB) error {
	if _, err := GetUserByUsername(db, u.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	res, err := db.Exec(`
	INSERT INTO users (username, email, password, is_admin, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.Password, u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func GetUserByID(db *sql.DB, id int64) (*User, error) {
	user, err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	return user, err
}

func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	user, err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	return user, err
}

// ListUsers returns every user ordered by username.
func ListUsers(db *sql.DB) ([]User, error) {
	rows, err := db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func CountUsers(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// UpdateUser saves the editable profile fields (email and admin flag).
func (u *User) UpdateUser(db *sql.DB) error {
	u.UpdatedAt = time.Now().UTC()
	return execOne(db, `UPDATE users SET email = ?, is_admin = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.IsAdmin, u.UpdatedAt, u.ID)
}

func (u *User) UpdatePassword(db *sql.DB, newPasswordHash string) error {
	u.UpdatedAt = time.Now().UTC()
	if err := execOne(db, `UPDATE users SET password = ?, updated_at = ? WHERE id = ?`,
		newPasswordHash, u.UpdatedAt, u.ID); err != nil {
		return err
	}
	u.Password = newPasswordHash
	return nil
}

func DeleteUser(db *sql.DB, id int64) error {
	return execOne(db, `DELETE FROM users WHERE id = ?`, id)
}

// RecordLogin bumps the login counter and stores the client address.
func (u *User) RecordLogin(db *sql.DB, ip string) error {
	now := time.Now().UTC()
	if err := execOne(db, `UPDATE users SET login_count = login_count + 1, last_login_at = ?, last_login_ip = ? WHERE id = ?`,
		now, ip, u.ID); err != nil {
		return err
	}
	u.LoginCount++
	u.LastLoginAt = NullTime{Time: now, Valid: true}
	u.LastLoginIP = ip
	return nil
}

func (u *User) UpdateMfaSecret(db *sql.DB, secret string) error {
	if err := execOne(db, `UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), u.ID); err != nil {
		return err
	}
	u.MfaSecret = secret
	return nil
}

func (u *User) UpdateMfaEnabled(db *sql.DB, enabled bool) error {
	if err := execOne(db, `UPDATE users SET mfa_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), u.ID); err != nil {
		return err
	}
	u.MfaEnabled = enabled
	return nil
}

// execOne runs a statement that must touch exactly one row.
func execOne(db *sql.DB, query string, args ...any) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
