package auth

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

var defaultPolicies = [][]string{
	{RoleAdmin, "/api/admin/*", "*"},
	{RoleService, "/api/admin/*", "*"},
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer loads the casbin model and policy files. With either path empty it
// falls back to the built-in admin policy.
func NewAuthorizer(modelPath, policyPath string) (*Authorizer, error) {
	if modelPath != "" && policyPath != "" {
		e, err := casbin.NewEnforcer(modelPath, policyPath)
		if err != nil {
			return nil, err
		}
		return &Authorizer{enforcer: e}, nil
	}

	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}

	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Allow(p *Principal, path, method string) (bool, error) {
	if p == nil || p.Role == "" {
		return false, nil
	}
	return a.enforcer.Enforce(p.Role, path, method)
}
