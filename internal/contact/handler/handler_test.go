package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-link/internal/contact/models"
	pkgerrors "identity-link/pkg/domain-errors"
	"identity-link/pkg/testutil"
)

// fakeService returns a canned view or error.
type fakeService struct {
	view        models.ConsolidatedView
	err         error
	gotEmail    string
	gotPhone    string
	gotDeadline time.Time
	callCount   int
}

func (f *fakeService) Resolve(ctx context.Context, email, phone string) (models.ConsolidatedView, error) {
	f.callCount++
	f.gotEmail = email
	f.gotPhone = phone
	if deadline, ok := ctx.Deadline(); ok {
		f.gotDeadline = deadline
	}
	if f.err != nil {
		return models.ConsolidatedView{}, f.err
	}
	return f.view, nil
}

func newTestRouter(svc Service) http.Handler {
	return newTestRouterWithTimeout(svc, 0)
}

func newTestRouterWithTimeout(svc Service, timeout time.Duration) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, nil, nil, timeout)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandleIdentifySuccess(t *testing.T) {
	svc := &fakeService{view: models.ConsolidatedView{
		PrimaryContactID:    1,
		Emails:              []string{"a@x.com"},
		PhoneNumbers:        []string{"111", "222"},
		SecondaryContactIDs: []int64{2},
	}}
	router := newTestRouter(svc)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identify", map[string]string{
		"email":       "a@x.com",
		"phoneNumber": "222",
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "a@x.com", svc.gotEmail)
	assert.Equal(t, "222", svc.gotPhone)

	resp := testutil.UnmarshalResponse[map[string]models.ConsolidatedView](t, rr)
	contact, ok := (*resp)["contact"]
	require.True(t, ok, "response must be wrapped in a contact envelope")
	assert.Equal(t, int64(1), contact.PrimaryContactID)
	assert.Equal(t, []string{"111", "222"}, contact.PhoneNumbers)
	assert.Equal(t, []int64{2}, contact.SecondaryContactIDs)
}

func TestHandleIdentifyMissingIdentifiers(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeBadRequest, "either email or phoneNumber must be provided")}
	router := newTestRouter(svc)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identify", map[string]string{})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, string(pkgerrors.CodeBadRequest))
}

func TestHandleIdentifyMalformedBody(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/identify", "{not json")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Zero(t, svc.callCount, "service must not run on malformed input")
}

func TestHandleIdentifyStoreFailure(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeUnavailable, "contact store unavailable")}
	router := newTestRouter(svc)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identify", map[string]string{"email": "a@x.com"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	testutil.AssertErrorCode(t, rr, string(pkgerrors.CodeUnavailable))
}

func TestHandleIdentifyAppliesConfiguredTimeout(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouterWithTimeout(svc, 5*time.Second)

	start := time.Now()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/identify", map[string]string{"email": "a@x.com"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	require.False(t, svc.gotDeadline.IsZero(), "request context must carry a deadline")
	assert.WithinDuration(t, start.Add(5*time.Second), svc.gotDeadline, time.Second)
}

func TestHandleIdentifyMethodNotAllowed(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := testutil.NewJSONRequest(t, http.MethodGet, "/identify", nil)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusMethodNotAllowed)
}
