package postgres

import (
	"github.com/jinzhu/gorm"

	C "insightcache/config"
)

// Postgres Entity store implementation over the shared gorm connection.
type Postgres struct{}

func (store *Postgres) db() *gorm.DB {
	return C.GetServices().Db
}
