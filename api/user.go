package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/resource"
	"github.com/bartossh/Rampart/session"
)

type Users struct {
	*resource.Client[entity.User, string]
}

// UpdateAccount updates own account of the signed in user and returns the reissued tokens.
func (u *Users) UpdateAccount(ctx context.Context, id string, user entity.User) (session.TokenSet, error) {
	var ts session.TokenSet
	err := u.Send(ctx, http.MethodPut, "/"+url.PathEscape(id)+"/account", nil, user, &ts)
	return ts, err
}
