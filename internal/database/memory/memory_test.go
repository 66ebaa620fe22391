package memory_test

import (
	"testing"

	"playtime/internal/calendar"
	"playtime/internal/database"
	"playtime/internal/database/memory"
	"playtime/internal/database/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, cal *calendar.Calendar) database.Store {
		return memory.New(cal)
	})
}
