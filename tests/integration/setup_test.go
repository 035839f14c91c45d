// Package integration exercises the automation API end to end: real
// agents over gateway doubles, the SQLite audit trail and the full HTTP
// router, driven through plain requests.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopops/automator/internal/agents"
	"github.com/shopops/automator/internal/agents/agenttest"
	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/infrastructure/approval"
	"github.com/shopops/automator/internal/infrastructure/cache"
	"github.com/shopops/automator/internal/infrastructure/escalation"
	"github.com/shopops/automator/internal/infrastructure/event"
	"github.com/shopops/automator/internal/infrastructure/persistence"
	"github.com/shopops/automator/internal/interfaces/http/handler"
	"github.com/shopops/automator/internal/interfaces/http/router"
	"github.com/shopops/automator/tests/testutil"
)

const (
	testSKU    = "SKU-ROUTED"
	opsContact = "ops@shopops.test"
)

// apiSetup wires the full stack once per test: agents, engine, audit
// trail and the versioned router.
type apiSetup struct {
	Router    *gin.Engine
	Service   *engine.Service
	History   *persistence.GormHistoryRepository
	Grants    *approval.GrantService
	Store     *agenttest.Storefront
	Supplier  *agenttest.Supplier
	Messaging *agenttest.Messaging
}

func newAPISetup(t *testing.T) *apiSetup {
	t.Helper()

	log := zaptest.NewLogger(t)
	history := testutil.NewTestHistory(t)

	bus := event.NewInMemoryEventBus(log)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	store := agenttest.NewStorefront("shop")
	supplier := agenttest.NewSupplier("supply", map[string]int64{testSKU: 10_000})
	messaging := agenttest.NewMessaging("mail")

	registry := agent.NewRegistry()
	require.NoError(t, agents.Register(registry, agents.Deps{
		Storefront: store,
		Suppliers:  []gateway.Supplier{supplier},
		Messaging:  messaging,
		AdPlatform: agenttest.NewAdPlatform("ads"),
		Payment:    agenttest.NewPayment("pay", decimal.NewFromInt(100_000)),
		OpsContact: opsContact,
		Logger:     log,
	}))

	grants := approval.NewGrantService(approval.GrantConfig{
		Secret: "integration-secret",
		Issuer: "automator-test",
		TTL:    time.Hour,
	})

	svc, err := engine.NewService(engine.Config{Workers: 2}, engine.Deps{
		Registry:  registry,
		Approvals: approval.NewInMemoryStore(),
		Ledger:    cache.NewInMemoryLedger(),
		History:   history,
		Bus:       bus,
		Escalator: escalation.NewMessagingEscalator(messaging, opsContact, log),
		Logger:    log,
	})
	require.NoError(t, err)

	ginEngine := gin.New()
	router.NewRouter(ginEngine, router.WithAPIVersion("v1")).
		Register(handler.NewAutomationHandler(svc, grants)).
		Register(handler.NewSystemHandler("integration-test")).
		Setup()

	return &apiSetup{
		Router:    ginEngine,
		Service:   svc,
		History:   history,
		Grants:    grants,
		Store:     store,
		Supplier:  supplier,
		Messaging: messaging,
	}
}

// seedPendingOrders stocks the storefront double with n routable orders.
func (s *apiSetup) seedPendingOrders(n int) {
	for i := 0; i < n; i++ {
		s.Store.Orders = append(s.Store.Orders, gateway.Order{
			ID:         fmt.Sprintf("o-%03d", i+1),
			CustomerID: fmt.Sprintf("c-%03d", i+1),
			Email:      fmt.Sprintf("buyer%d@example.com", i+1),
			Status:     "pending",
			Total:      decimal.NewFromInt(25),
			Lines:      []gateway.OrderLine{{SKU: testSKU, Quantity: 1, Price: decimal.NewFromInt(25)}},
			PlacedAt:   time.Now().Add(-time.Hour),
		})
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	env := decodeBody(t, w)
	require.NotNil(t, env.Data, "expected data in body: %s", w.Body.String())

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), "data: %s", string(env.Data))
	return out
}

// errorCode extracts the machine-readable code from an error envelope.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	env := decodeBody(t, w)
	require.NotNil(t, env.Error, "expected error in body: %s", w.Body.String())
	return env.Error.Code
}

// Wire views for the fields the scenarios assert on.

type planView struct {
	ID            uuid.UUID `json:"id"`
	AgentType     string    `json:"agent_type"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	Risk          string    `json:"risk"`
	Scale         int       `json:"scale"`
	NeedsApproval bool      `json:"needs_approval"`
}

type itemResultView struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

type resultView struct {
	PlanID  uuid.UUID        `json:"plan_id"`
	Agent   string           `json:"agent"`
	Mode    string           `json:"mode"`
	Status  string           `json:"status"`
	Results []itemResultView `json:"results"`
	Summary map[string]any   `json:"summary"`
}

type pendingView struct {
	PlanID uuid.UUID `json:"plan_id"`
	Status string    `json:"status"`
	Risk   string    `json:"risk"`
	Scale  int       `json:"scale"`
}

type rollbackView struct {
	PlanID      uuid.UUID `json:"plan_id"`
	Status      string    `json:"status"`
	StepsRun    int       `json:"steps_run"`
	StepsFailed int       `json:"steps_failed"`
}

type executionsView struct {
	Executions []resultView `json:"executions"`
}

type agentsView struct {
	Agents []string `json:"agents"`
}
