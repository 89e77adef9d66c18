package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"identity-link/internal/contact/models"
)

func secondaryOf(id, primaryID int64, email, phone string) *models.Contact {
	return &models.Contact{
		ID:             id,
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &primaryID,
		LinkPrecedence: models.LinkPrecedenceSecondary,
		CreatedAt:      time.Now(),
	}
}

func TestBuildViewPrimaryValuesFirst(t *testing.T) {
	primary := &models.Contact{ID: 5, Email: "p@x.com", PhoneNumber: "111", LinkPrecedence: models.LinkPrecedencePrimary}
	cluster := []*models.Contact{
		secondaryOf(9, 5, "z@x.com", "333"),
		secondaryOf(7, 5, "a@x.com", "222"),
	}

	view := buildView(primary, cluster)

	assert.Equal(t, int64(5), view.PrimaryContactID)
	assert.Equal(t, []string{"p@x.com", "a@x.com", "z@x.com"}, view.Emails)
	assert.Equal(t, []string{"111", "222", "333"}, view.PhoneNumbers)
	assert.Equal(t, []int64{7, 9}, view.SecondaryContactIDs)
}

func TestBuildViewDeduplicatesAndSkipsEmpty(t *testing.T) {
	primary := &models.Contact{ID: 1, Email: "p@x.com", LinkPrecedence: models.LinkPrecedencePrimary}
	cluster := []*models.Contact{
		secondaryOf(2, 1, "p@x.com", "222"),
		secondaryOf(3, 1, "", "222"),
	}

	view := buildView(primary, cluster)

	assert.Equal(t, []string{"p@x.com"}, view.Emails)
	assert.Equal(t, []string{"222"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2, 3}, view.SecondaryContactIDs)
}

func TestBuildViewEmptyCluster(t *testing.T) {
	primary := &models.Contact{ID: 1, PhoneNumber: "111", LinkPrecedence: models.LinkPrecedencePrimary}

	view := buildView(primary, nil)

	assert.NotNil(t, view.Emails)
	assert.Empty(t, view.Emails)
	assert.Equal(t, []string{"111"}, view.PhoneNumbers)
	assert.Empty(t, view.SecondaryContactIDs)
}

func TestBuildViewDoesNotMutateInputs(t *testing.T) {
	primary := &models.Contact{ID: 1, Email: "p@x.com", LinkPrecedence: models.LinkPrecedencePrimary}
	cluster := []*models.Contact{
		secondaryOf(3, 1, "b@x.com", ""),
		secondaryOf(2, 1, "a@x.com", ""),
	}

	buildView(primary, cluster)

	assert.Equal(t, int64(3), cluster[0].ID, "input slice order must be preserved")
}
