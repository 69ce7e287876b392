package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepositoryArchiveAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	first := validRecord()
	second := validRecord()
	second.LeadID = "lead-456"
	second.Name = "Basel"

	require.NoError(t, repo.Archive(ctx, &first))
	require.NoError(t, repo.Archive(ctx, &second))

	records, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "lead-456", records[0].LeadID, "newest first")
	assert.Equal(t, "lead-123", records[1].LeadID)

	limited, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "lead-456", limited[0].LeadID)
}

func TestInMemoryRepositoryRejectsInvalid(t *testing.T) {
	repo := NewInMemoryRepository()
	rec := validRecord()
	rec.Phone = "123"
	assert.ErrorIs(t, repo.Archive(context.Background(), &rec), ErrInvalidPhone)
}
