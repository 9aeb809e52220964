package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
)

// ============================================================
// Support / HR tables (implements port.SupportStore)
// ============================================================

func listRecent[T any](ctx context.Context, c *Client, table, order string, limit int) ([]T, error) {
	path := fmt.Sprintf("%s?select=*&limit=%d", table, limit)
	if order != "" {
		path += "&order=" + order
	}
	var rows []T
	if err := c.selectRows(ctx, table, path, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

func (c *Client) ListSupportTickets(ctx context.Context, limit int) ([]domain.SupportTicket, error) {
	return listRecent[domain.SupportTicket](ctx, c, "support_tickets", "created_at.desc", limit)
}

func (c *Client) ListTouchpoints(ctx context.Context, limit int) ([]domain.Touchpoint, error) {
	return listRecent[domain.Touchpoint](ctx, c, "cs_touchpoints", "created_at.desc", limit)
}

func (c *Client) ListOpportunities(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	return listRecent[domain.Opportunity](ctx, c, "cs_opportunities", "created_at.desc", limit)
}

func (c *Client) ListVisits(ctx context.Context, limit int) ([]domain.Visit, error) {
	return listRecent[domain.Visit](ctx, c, "cs_visits", "scheduled_at.desc", limit)
}

func (c *Client) ListEmployees(ctx context.Context, limit int) ([]domain.Employee, error) {
	return listRecent[domain.Employee](ctx, c, "employees", "name.asc", limit)
}

func (c *Client) ListComplaints(ctx context.Context, limit int) ([]domain.Complaint, error) {
	return listRecent[domain.Complaint](ctx, c, "ouvidoria", "created_at.desc", limit)
}

func (c *Client) ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error) {
	return listRecent[domain.Announcement](ctx, c, "announcements", "published_at.desc", limit)
}

func (c *Client) ListTimeBank(ctx context.Context, limit int) ([]domain.TimeBankEntry, error) {
	return listRecent[domain.TimeBankEntry](ctx, c, "time_bank", "", limit)
}
