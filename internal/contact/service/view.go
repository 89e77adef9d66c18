package service

import (
	"sort"

	"identity-link/internal/contact/models"
	pkgstrings "identity-link/pkg/platform/strings"
)

// buildView assembles the consolidated view for a cluster: the primary plus
// every contact directly linked to it. Pure read transformation; the inputs
// are not mutated.
//
// Ordering rules: the primary's own email and phone come first, then values
// from secondaries in ascending id order, deduplicated. Secondary ids are
// ascending.
func buildView(primary *models.Contact, cluster []*models.Contact) models.ConsolidatedView {
	members := append([]*models.Contact{}, cluster...)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	emails := make([]string, 0, len(members)+1)
	phones := make([]string, 0, len(members)+1)
	secondaryIDs := make([]int64, 0, len(members))

	emails = append(emails, primary.Email)
	phones = append(phones, primary.PhoneNumber)
	for _, c := range members {
		emails = append(emails, c.Email)
		phones = append(phones, c.PhoneNumber)
		secondaryIDs = append(secondaryIDs, c.ID)
	}

	return models.ConsolidatedView{
		PrimaryContactID:    primary.ID,
		Emails:              pkgstrings.DedupeAndTrim(emails),
		PhoneNumbers:        pkgstrings.DedupeAndTrim(phones),
		SecondaryContactIDs: secondaryIDs,
	}
}
