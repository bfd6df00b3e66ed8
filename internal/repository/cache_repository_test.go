package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest []string

	assert.ErrorIs(t, repo.Get(context.Background(), "noc:checklist:active", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "noc:checklist:active", []string{"a"}, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "noc:checklist:active"))
}
