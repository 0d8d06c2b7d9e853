package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// CreateUsersTable creates the users and password reset token tables
func CreateUsersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users_table",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(64),
					password VARCHAR(255),
					referral_code VARCHAR(8) UNIQUE,
					referral_code_expiry TIMESTAMP WITH TIME ZONE,
					referer_id BIGINT REFERENCES users(id),
					google_id VARCHAR(255) UNIQUE,
					two_factor_enabled BOOLEAN DEFAULT FALSE,
					two_factor_secret VARCHAR(255),
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					CONSTRAINT referral_code_expiry_paired CHECK (
						(referral_code IS NULL) = (referral_code_expiry IS NULL)
					)
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
				CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code);
				CREATE INDEX IF NOT EXISTS idx_users_referer_id ON users(referer_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS password_reset_tokens (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id BIGINT NOT NULL REFERENCES users(id),
					token VARCHAR(255) NOT NULL UNIQUE,
					expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_password_reset_tokens_token ON password_reset_tokens(token);
				CREATE INDEX IF NOT EXISTS idx_password_reset_tokens_user_id ON password_reset_tokens(user_id);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec("DROP TABLE IF EXISTS password_reset_tokens").Error; err != nil {
				return err
			}
			return tx.Exec("DROP TABLE IF EXISTS users").Error
		},
	}
}
