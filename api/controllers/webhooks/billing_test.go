package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/missions-backend/internal/billing"
	billingwebhook "github.com/angelmondragon/missions-backend/internal/webhooks/billing"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
)

type stubBillingService struct {
	events []billing.Event
	result billingwebhook.Result
	err    error
}

func (s *stubBillingService) HandleEvent(_ context.Context, event billing.Event) (billingwebhook.Result, error) {
	s.events = append(s.events, event)
	return s.result, s.err
}

const renewalBody = `{
	"id": "evt_1",
	"type": "subscription-updated",
	"customer_ref": "cus_1",
	"subscription_ref": "sub_1",
	"status": "active",
	"occurred_at": "2026-01-02T00:00:00Z"
}`

func TestBillingWebhookForwardsEvent(t *testing.T) {
	svc := &stubBillingService{result: billingwebhook.Result{Received: true, Outcome: "applied"}}
	handler := BillingWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(renewalBody))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, svc.events, 1)
	require.Equal(t, enums.BillingEventTypeSubscriptionUpdated, svc.events[0].Type)
	require.Equal(t, "cus_1", svc.events[0].CustomerRef)
	require.Contains(t, resp.Body.String(), `"outcome":"applied"`)
}

func TestBillingWebhookRejectsMissingFields(t *testing.T) {
	svc := &stubBillingService{}
	handler := BillingWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(`{"id":"evt_2"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, svc.events)
}

func TestBillingWebhookRejectsCheckoutWithoutReference(t *testing.T) {
	svc := &stubBillingService{}
	handler := BillingWebhook(svc, nil)

	body := `{"id":"evt_3","type":"checkout-completed","customer_ref":"cus_1","occurred_at":"2026-01-02T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, svc.events)
}

func TestBillingWebhookSurfacesFailures(t *testing.T) {
	svc := &stubBillingService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "apply event")}
	handler := BillingWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(renewalBody))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
