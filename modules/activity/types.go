package activity

import (
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// ListActivityRequest asks for the most recent feed entries.
type ListActivityRequest struct {
	Actor *user.Principal `json:"actor"`
	Limit int             `json:"limit,omitempty"`
}

// ListActivityResponse carries feed entries, newest first.
type ListActivityResponse struct {
	Entries []Entry      `json:"entries,omitempty"`
	Total   int          `json:"total"`
	Error   *apperr.Info `json:"error,omitempty"`
}
