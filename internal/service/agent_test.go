package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/sector"
	"github.com/boddenberg/intranet-sector-agent-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)

type agentFixture struct {
	agent    *service.SectorAgent
	registry *sector.Registry
	erp      *stubFetcher
	docs     *stubDocs
	support  *stubSupport
	kanban   *stubKanban
	llm      *stubLLM
	trigger  *stubTrigger
	metrics  *observability.Metrics
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	reg, err := sector.Load()
	require.NoError(t, err)

	f := &agentFixture{
		registry: reg,
		erp:      &stubFetcher{pages: map[string][][]json.RawMessage{}, errs: map[string]error{}},
		docs:     &stubDocs{},
		support:  &stubSupport{},
		kanban:   &stubKanban{text: "Coluna Impressão: 4 cartões | Coluna Acabamento: 2 cartões"},
		llm:      &stubLLM{},
		trigger:  &stubTrigger{},
		metrics:  observability.NewMetrics(),
	}
	f.agent = service.NewSectorAgent(service.AgentDeps{
		Registry: reg,
		ERP:      f.erp,
		Docs:     f.docs,
		Support:  f.support,
		Kanban:   f.kanban,
		LLM:      f.llm,
		Resync:   f.trigger,
		Metrics:  f.metrics,
		Logger:   zaptest.NewLogger(t),
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func TestLiveSummary_FailingEndpointIsIsolated(t *testing.T) {
	f := newAgentFixture(t)
	f.erp.pages["customers"] = [][]json.RawMessage{raws(`{"name":"Gráfica Alfa","active":true}`)}
	f.erp.pages["jobs"] = [][]json.RawMessage{raws(`{"status":"impressão"}`)}
	f.erp.errs["budgets"] = &domain.ErrExternalService{Service: "holdprint/budgets", Err: errors.New("HTTP 502")}

	out := f.agent.LiveSummary(context.Background(), f.registry.Resolve("comercial"))

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "## 📊 DADOS EM TEMPO REAL (HOLDPRINT)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "CLIENTES: 1 registros"))
	assert.Equal(t, "budgets: ⚠️ HTTP 502", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "PRODUÇÃO (JOBS): 1 jobs"))
}

func TestLiveSummary_UsesCurrentMonthFirstPage(t *testing.T) {
	f := newAgentFixture(t)

	f.agent.LiveSummary(context.Background(), f.registry.Resolve("financeiro"))

	calls := f.erp.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, 1, c.Query.Page)
		assert.Equal(t, 20, c.Query.PageSize)
		require.NotNil(t, c.Query.Window)
		assert.Equal(t, "2026-10-01", c.Query.Window.Start.Format("2006-01-02"))
		assert.Equal(t, "2026-10-31", c.Query.Window.End.Format("2006-01-02"))
	}
}

func TestLiveSummary_EmptyPage(t *testing.T) {
	f := newAgentFixture(t)

	out := f.agent.LiveSummary(context.Background(), f.registry.Resolve("rh"))

	assert.Contains(t, out, "jobs: Nenhum registro encontrado no período")
}

func TestHistoryContext(t *testing.T) {
	profile := domain.SectorProfile{ID: "comercial", Endpoints: []string{"customers", "budgets"}}

	t.Run("store error yields empty", func(t *testing.T) {
		f := newAgentFixture(t)
		f.docs.err = errBoom
		assert.Empty(t, f.agent.HistoryContext(context.Background(), profile))
	})

	t.Run("no rows yields empty", func(t *testing.T) {
		f := newAgentFixture(t)
		assert.Empty(t, f.agent.HistoryContext(context.Background(), profile))
	})

	t.Run("groups by endpoint in profile order", func(t *testing.T) {
		f := newAgentFixture(t)
		f.docs.docs = []domain.StoredDocument{
			{Content: "ORÇAMENTOS: fachada ACM", Metadata: domain.SyncMetadata{Endpoint: "budgets"}},
			{Content: "CLIENTES: Gráfica Alfa", Metadata: domain.SyncMetadata{Endpoint: "customers"}},
			{Content: "FORNECEDORES: ignorado", Metadata: domain.SyncMetadata{Endpoint: "suppliers"}},
		}

		out := f.agent.HistoryContext(context.Background(), profile)

		require.NotEmpty(t, out)
		assert.True(t, strings.HasPrefix(out, "## 📚 HISTÓRICO SINCRONIZADO"))
		assert.Less(t, strings.Index(out, "### CLIENTES"), strings.Index(out, "### ORÇAMENTOS"))
		assert.NotContains(t, out, "ignorado")
	})

	t.Run("caps excerpts per endpoint and truncates each", func(t *testing.T) {
		f := newAgentFixture(t)
		for i := 0; i < 12; i++ {
			f.docs.docs = append(f.docs.docs, domain.StoredDocument{
				Content:  strings.Repeat("a", 1000),
				Metadata: domain.SyncMetadata{Endpoint: "budgets"},
			})
		}

		out := f.agent.HistoryContext(context.Background(), profile)

		assert.Contains(t, out, "### ORÇAMENTOS (12 documentos recentes)")
		var bullets []string
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, "- ") {
				bullets = append(bullets, strings.TrimPrefix(line, "- "))
			}
		}
		require.Len(t, bullets, 10)
		for _, b := range bullets {
			assert.Equal(t, strings.Repeat("a", 600)+"…", b)
			assert.Equal(t, 601, utf8.RuneCountInString(b))
		}
	})
}

func TestTicketsContext_Gating(t *testing.T) {
	f := newAgentFixture(t)
	f.support.tickets = []domain.SupportTicket{{ID: "1", Status: "open", Category: "entrega"}}

	assert.Empty(t, f.agent.TicketsContext(context.Background(), f.registry.Resolve("comercial")))
	assert.Contains(t, f.agent.TicketsContext(context.Background(), f.registry.Resolve("cs")), "## 🎫 CHAMADOS DE SUPORTE")
}

func TestTicketsContext_FailingTableDropsOnlyItsBlock(t *testing.T) {
	f := newAgentFixture(t)
	f.support.ticketsErr = errBoom
	f.support.touchpoints = []domain.Touchpoint{{ID: "t1", Type: "call"}}

	out := f.agent.TicketsContext(context.Background(), f.registry.Resolve("cs"))

	assert.NotContains(t, out, "CHAMADOS DE SUPORTE")
	assert.Contains(t, out, "TOUCHPOINTS CS")
}

func TestInternalDBContext_OnlyOrchestrator(t *testing.T) {
	f := newAgentFixture(t)
	f.support.employees = []domain.Employee{{ID: "e1", Department: "Produção", Active: true}}

	assert.Empty(t, f.agent.InternalDBContext(context.Background(), f.registry.Resolve("cs")))
	assert.Contains(t, f.agent.InternalDBContext(context.Background(), f.registry.Resolve("orquestrador")), "COLABORADORES")
}

func TestKanbanContext(t *testing.T) {
	f := newAgentFixture(t)
	assert.Empty(t, f.agent.KanbanContext(context.Background(), f.registry.Resolve("comercial")))

	out := f.agent.KanbanContext(context.Background(), f.registry.Resolve("operacao"))
	assert.Equal(t, "## 📋 KANBAN DE PRODUÇÃO\n"+f.kanban.text, out)

	f.kanban.err = &domain.ErrScrapeUnavailable{Reason: "HTTP 503"}
	out = f.agent.KanbanContext(context.Background(), f.registry.Resolve("operacao"))
	assert.Contains(t, out, "indisponível")
	assert.Contains(t, out, "HTTP 503")
}

func TestBuildContext_FixedOrder(t *testing.T) {
	f := newAgentFixture(t)
	f.erp.pages["customers"] = [][]json.RawMessage{raws(`{"name":"A"}`)}
	f.docs.docs = []domain.StoredDocument{{Content: "x", Metadata: domain.SyncMetadata{Endpoint: "customers"}}}
	f.support.tickets = []domain.SupportTicket{{ID: "1", Status: "open"}}
	f.support.employees = []domain.Employee{{ID: "e1", Active: true}}

	bundle := f.agent.BuildContext(context.Background(), f.registry.Resolve("orquestrador"))

	var names []string
	for _, s := range bundle.Sections() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"live_erp", "history", "tickets", "internal_db", "kanban"}, names)
}

func TestPrepare_SystemPrompt(t *testing.T) {
	f := newAgentFixture(t)

	prep, err := f.agent.Prepare(context.Background(), domain.AgentRequest{
		Sector:   "COMERCIAL",
		Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "Como estão os orçamentos?"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "comercial", prep.Profile.ID)
	assert.True(t, strings.HasPrefix(prep.System, "Você é o agente do setor Comercial"))
	assert.Contains(t, prep.System, "REGRAS:")
	assert.Contains(t, prep.System, "Data atual: 16/10/2026")
	assert.Contains(t, prep.System, "## 📊 DADOS EM TEMPO REAL (HOLDPRINT)")
}

func TestPrepare_UnknownSectorFallsBack(t *testing.T) {
	f := newAgentFixture(t)

	prep, err := f.agent.Prepare(context.Background(), domain.AgentRequest{
		Sector:   "juridico",
		Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "oi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSectorID, prep.Profile.ID)
}

func TestValidate(t *testing.T) {
	f := newAgentFixture(t)

	tests := []struct {
		name    string
		req     domain.AgentRequest
		wantErr bool
	}{
		{"empty", domain.AgentRequest{}, true},
		{"bad role", domain.AgentRequest{Messages: []domain.ConversationMessage{{Role: "tool", Content: "x"}}}, true},
		{"ok", domain.AgentRequest{Messages: []domain.ConversationMessage{
			{Role: domain.RoleUser, Content: "a"},
			{Role: domain.RoleAssistant, Content: "b"},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.agent.Validate(tt.req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ErrValidation
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestStream_TriggersResyncAndOpensProvider(t *testing.T) {
	f := newAgentFixture(t)

	stream, err := f.agent.Stream(context.Background(), domain.AgentRequest{
		Sector:   "cs",
		Provider: "claude",
		Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "Quantos chamados abertos?"}},
	})

	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, []string{"cs"}, f.trigger.sectors)
	assert.Equal(t, "claude", f.llm.provider)
	assert.Contains(t, f.llm.system, "Customer Success")
	assert.Equal(t, int64(1), f.metrics.GetAgentSnapshot().TotalRequests)
}

func TestStream_RateLimited(t *testing.T) {
	f := newAgentFixture(t)
	f.llm.err = &domain.ErrRateLimited{Provider: "gemini"}

	_, err := f.agent.Stream(context.Background(), domain.AgentRequest{
		Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "oi"}},
	})

	var rl *domain.ErrRateLimited
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, int64(1), f.metrics.GetAgentSnapshot().RateLimited)
}

func TestStream_MissingProviderKeySkipsContextAndResync(t *testing.T) {
	f := newAgentFixture(t)
	f.llm.checkErr = &domain.ErrMissingConfig{Key: "ANTHROPIC_API_KEY"}

	_, err := f.agent.Stream(context.Background(), domain.AgentRequest{
		Sector:   "orquestrador",
		Provider: "claude",
		Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "Resumo"}},
	})

	var missing *domain.ErrMissingConfig
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, f.erp.Calls())
	assert.Empty(t, f.trigger.sectors)
	assert.Zero(t, f.llm.opened)
	assert.Equal(t, int64(1), f.metrics.GetAgentSnapshot().TotalRequests)
}

func TestNewSectorAgent_DefaultsMetrics(t *testing.T) {
	reg, err := sector.Load()
	require.NoError(t, err)
	agent := service.NewSectorAgent(service.AgentDeps{
		Registry: reg,
		ERP:      &stubFetcher{pages: map[string][][]json.RawMessage{}, errs: map[string]error{}},
		LLM:      &stubLLM{},
	})

	require.NotPanics(t, func() {
		stream, err := agent.Stream(context.Background(), domain.AgentRequest{
			Sector:   "rh",
			Messages: []domain.ConversationMessage{{Role: domain.RoleUser, Content: "oi"}},
		})
		require.NoError(t, err)
		stream.Body.Close()
	})
}

func TestStream_InvalidRequestSkipsProvider(t *testing.T) {
	f := newAgentFixture(t)

	_, err := f.agent.Stream(context.Background(), domain.AgentRequest{Sector: "cs"})

	require.Error(t, err)
	assert.Empty(t, f.llm.system)
	assert.Empty(t, f.trigger.sectors)
}
