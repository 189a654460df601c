package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"pumpconsole/pkg/domain"
)

func (c *Client) ListAdmins(ctx context.Context, p domain.ListParams) (domain.Page[domain.User], error) {
	return listPage[domain.User](ctx, c, "/users/admins", "/users/admins", p)
}

// ListDistributors lists distributor accounts. The backend spells the
// collection "distributers".
func (c *Client) ListDistributors(ctx context.Context, p domain.ListParams) (domain.Page[domain.User], error) {
	return listPage[domain.User](ctx, c, "/users/distributers", "/users/distributers", p)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	var resp messageResponse
	return c.doJSON(ctx, http.MethodDelete, "/users/{id}/delete", "/users/"+url.PathEscape(id)+"/delete", nil, nil, &resp)
}
