package alertgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentineld/sentineld/pkg/models"
)

func TestAppendCapped_UnderCapacity(t *testing.T) {
	existing := []models.Event{{ID: "1"}}
	got := appendCapped(existing, []models.Event{{ID: "2"}}, 100)
	assert.Len(t, got, 2)
}

func TestAppendCapped_EvictsOldest(t *testing.T) {
	var existing []models.Event
	for i := 0; i < 100; i++ {
		existing = append(existing, models.Event{ID: string(rune('a' + i%26)), Timestamp: time.Now()})
	}
	got := appendCapped(existing, []models.Event{{ID: "new-1"}, {ID: "new-2"}}, 100)
	assert.Len(t, got, 100)
	assert.Equal(t, "new-2", got[len(got)-1].ID)
}
