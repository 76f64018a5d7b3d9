package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
)

// AutoMigrate builds the schema from the gorm models. It backs the sqlite
// driver, where the Postgres SQL migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
