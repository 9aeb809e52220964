package domain

import (
	"io"
	"strings"
	"time"
)

// ============================================================
// Setores: perfis e endpoints do ERP
// ============================================================

// DefaultSectorID é o perfil usado quando o setor pedido não existe.
const DefaultSectorID = "orquestrador"

// SectorProfile descreve a persona de um setor e as fontes de dados dele.
// Montado uma vez no startup e nunca alterado depois.
type SectorProfile struct {
	ID             string
	Label          string
	SystemPrompt   string
	Endpoints      []string
	UsesTickets    bool
	UsesInternalDB bool
	UsesKanban     bool
}

// EndpointConfig descreve como consultar um recurso do ERP Holdprint.
// Os nomes dos parâmetros de data variam entre endpoints financeiros
// (start_date/end_date) e operacionais (startDate/endDate).
type EndpointConfig struct {
	Name           string
	Label          string
	Path           string
	PageParam      string
	PageSizeParam  string
	UsesDateRange  bool
	StartDateParam string
	EndDateParam   string
}

// DateWindow é um intervalo fechado de datas usado nos filtros do ERP.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// CurrentMonthWindow cobre o mês-calendário de now (do dia 1 ao último dia).
func CurrentMonthWindow(now time.Time) DateWindow {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)
	return DateWindow{Start: start, End: end}
}

// LastMonthsWindow cobre os últimos n meses até now.
func LastMonthsWindow(now time.Time, n int) DateWindow {
	return DateWindow{Start: now.AddDate(0, -n, 0), End: now}
}

// FetchQuery parametriza uma página de consulta ao ERP.
// APIKey vazio usa a chave padrão do client.
type FetchQuery struct {
	Page     int
	PageSize int
	Window   *DateWindow
	APIKey   string
}

// ============================================================
// Contexto montado para o LLM
// ============================================================

// ContextSection é um bloco de texto rotulado do contexto.
type ContextSection struct {
	Name string
	Text string
}

// ContextBundle é a concatenação ordenada das seções de contexto.
// Seções vazias são descartadas na construção; depois disso é imutável.
type ContextBundle struct {
	sections []ContextSection
}

// NewContextBundle monta o bundle preservando a ordem recebida.
func NewContextBundle(sections ...ContextSection) *ContextBundle {
	kept := make([]ContextSection, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		kept = append(kept, s)
	}
	return &ContextBundle{sections: kept}
}

// Sections devolve uma cópia das seções.
func (b *ContextBundle) Sections() []ContextSection {
	out := make([]ContextSection, len(b.sections))
	copy(out, b.sections)
	return out
}

// String renderiza o bundle como texto único.
func (b *ContextBundle) String() string {
	parts := make([]string, 0, len(b.sections))
	for _, s := range b.sections {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, "\n\n")
}

// ============================================================
// Conversa
// ============================================================

// Papéis aceitos numa mensagem da conversa.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationMessage é uma mensagem enviada pelo chat do intranet.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentRequest é o body do POST /v1/sector-agent.
type AgentRequest struct {
	Messages []ConversationMessage `json:"messages"`
	Sector   string                `json:"sector"`
	Provider string                `json:"provider,omitempty"`
}

// LLMStream é a resposta aberta de um provider, repassada sem alteração.
type LLMStream struct {
	Provider    string
	ContentType string
	Body        io.ReadCloser
}

// ============================================================
// Documentos sincronizados (cache histórico do ERP)
// ============================================================

// SourceTypeHoldprintSync marca os documentos gravados pelo resync.
const SourceTypeHoldprintSync = "holdprint_sync"

// SyncMetadata identifica a origem de um SyncRecord.
type SyncMetadata struct {
	Endpoint string `json:"endpoint"`
	Unit     string `json:"unit"`
	RecordID string `json:"record_id"`
	SyncedAt string `json:"synced_at"`
}

// SyncRecord é uma linha da tabela documents, upsert por OriginalFilename.
type SyncRecord struct {
	Content          string       `json:"content"`
	Sector           string       `json:"sector"`
	SourceType       string       `json:"source_type"`
	OriginalFilename string       `json:"original_filename"`
	Metadata         SyncMetadata `json:"metadata"`
}

// StoredDocument é um documento lido do store histórico.
type StoredDocument struct {
	Content   string       `json:"content"`
	Metadata  SyncMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"created_at"`
}

// ResyncReport resume uma passada de resync.
type ResyncReport struct {
	Sector   string        `json:"sector"`
	Upserted int           `json:"upserted"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration_ns"`
	Finished time.Time     `json:"finished_at"`
}
