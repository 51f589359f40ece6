// Package all registers every storage backend via blank imports.
//
// Commands import this package once instead of tracking the backend
// list themselves.
package all

import (
	_ "foodfacts/internal/storage/mssql"
	_ "foodfacts/internal/storage/postgres"
	_ "foodfacts/internal/storage/sqlite"
)
