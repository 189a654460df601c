package apiclient

import (
	"context"
	"net/http"

	"pumpconsole/pkg/domain"
)

func (c *Client) Statistics(ctx context.Context) (domain.DashboardStatistics, error) {
	stats := domain.DashboardStatistics{}
	if err := c.doJSON(ctx, http.MethodGet, "/dashboard/statistics", "/dashboard/statistics", nil, nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) RecentActivities(ctx context.Context, p domain.ListParams) (domain.Page[domain.Activity], error) {
	return listPage[domain.Activity](ctx, c, "/dashboard/recent-activities", "/dashboard/recent-activities", p)
}

func (c *Client) ServiceTypeStatistics(ctx context.Context) ([]domain.ServiceTypeStat, error) {
	var resp struct {
		ServiceTypes []domain.ServiceTypeStat `json:"service_types"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/dashboard/service-type-statistics", "/dashboard/service-type-statistics", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ServiceTypes, nil
}

func (c *Client) PartNumberStatistics(ctx context.Context) ([]domain.PartNumberStat, error) {
	var resp struct {
		PartStatistics []domain.PartNumberStat `json:"part_statistics"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/dashboard/part-number-statistics", "/dashboard/part-number-statistics", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.PartStatistics, nil
}
