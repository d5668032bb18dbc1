package activity

import (
	"context"
	"encoding/json"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// ActivityPort reads the activity feed.
type ActivityPort interface {
	ListActivity(ctx context.Context, actor *user.Principal, limit int) ([]Entry, int, error)
}

// ActivityAdapter implements ActivityPort using the service container.
type ActivityAdapter struct {
	container mono.ServiceContainer
}

var _ ActivityPort = (*ActivityAdapter)(nil)

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(container mono.ServiceContainer) *ActivityAdapter {
	return &ActivityAdapter{container: container}
}

// ListActivity returns up to limit entries, newest first, and the number of
// retained entries.
func (a *ActivityAdapter) ListActivity(ctx context.Context, actor *user.Principal, limit int) ([]Entry, int, error) {
	req := ListActivityRequest{Actor: actor, Limit: limit}
	var resp ListActivityResponse
	err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListActivity,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	)
	if err != nil {
		return nil, 0, apperr.Transport(ServiceListActivity, err)
	}
	if resp.Error != nil {
		return nil, 0, resp.Error.Err()
	}
	return resp.Entries, resp.Total, nil
}
