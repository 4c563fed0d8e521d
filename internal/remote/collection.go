package remote

import (
	"context"
	"net/http"
	"strconv"

	"tokostok/backend/internal/domain"
)

// Collection is the remote CRUD surface for one kind. It implements
// syncer.EntityService.
type Collection[T domain.Entity[T]] struct {
	client *Client
	kind   domain.Kind
}

func NewCollection[T domain.Entity[T]](client *Client, kind domain.Kind) *Collection[T] {
	return &Collection[T]{client: client, kind: kind}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (c *Collection[T]) path() string {
	return "/api/v1/" + c.kind.Collection()
}

func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	var resp listResponse[T]
	if err := c.client.do(ctx, http.MethodGet, c.path(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []T{}, nil
	}
	return resp.Items, nil
}

// Insert upserts row under its own id.
func (c *Collection[T]) Insert(ctx context.Context, row T) error {
	return c.client.do(ctx, http.MethodPost, c.path(), row, nil)
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	return c.client.do(ctx, http.MethodDelete, c.path()+"/"+strconv.FormatInt(id, 10), nil, nil)
}
