// Package admin implements the permission-gated administrative callables.
package admin

import (
	"context"
	"fmt"

	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/authz"
	"github.com/PipeOpsHQ/financeira-functions/callable"
	"github.com/PipeOpsHQ/financeira-functions/store"
)

const (
	ConfigCollection  = "config"
	SecurityConfigID  = "security"
	AppCheckFieldName = "appCheckRequired"
)

// ClaimsSetter replaces the custom claims of a user. *auth.Client satisfies
// it, as does authz.StoreClaims for local runs.
type ClaimsSetter interface {
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
}

type Service struct {
	Claims ClaimsSetter
	Store  store.Store
	Audit  audit.Recorder
}

type SetClaimsResult struct {
	OK   bool   `json:"ok"`
	UID  string `json:"uid"`
	Role string `json:"role"`
}

type AppCheckResult struct {
	OK               bool `json:"ok"`
	AppCheckRequired bool `json:"appCheckRequired"`
}

// SetCustomClaims assigns role to the user named by data["uid"], replacing
// every custom claim the user had.
func (s *Service) SetCustomClaims(ctx context.Context, caller *authz.Principal, data map[string]any) (*SetClaimsResult, error) {
	if !authz.IsAdmin(caller) {
		return nil, callable.PermissionDenied("admin required")
	}
	uid := callable.StringOr(data["uid"], "")
	role := callable.StringOr(data["role"], string(authz.RoleUser))
	if uid == "" {
		return nil, callable.InvalidArgument("uid required")
	}
	if err := s.Claims.SetCustomUserClaims(ctx, uid, authz.ClaimsFor(role)); err != nil {
		return nil, fmt.Errorf("set custom claims: %w", err)
	}
	return &SetClaimsResult{OK: true, UID: uid, Role: role}, nil
}

// SetAppCheckRequired merges the flag into config/security and records the
// change. A failed audit write leaves the flag updated.
func (s *Service) SetAppCheckRequired(ctx context.Context, caller *authz.Principal, data map[string]any) (*AppCheckResult, error) {
	if !authz.IsAdmin(caller) {
		return nil, callable.PermissionDenied("admin required")
	}
	required := callable.Truthy(data["required"])
	if err := s.Store.Merge(ctx, ConfigCollection, SecurityConfigID, map[string]any{AppCheckFieldName: required}); err != nil {
		return nil, fmt.Errorf("update security config: %w", err)
	}
	if _, err := s.Audit.Record(ctx, audit.ConfigChange(required, caller.UID)); err != nil {
		return nil, err
	}
	return &AppCheckResult{OK: true, AppCheckRequired: required}, nil
}

// SetCustomClaimsFunc adapts SetCustomClaims to the callable protocol.
func (s *Service) SetCustomClaimsFunc() callable.Func {
	return func(ctx context.Context, req callable.Request) (any, error) {
		return s.SetCustomClaims(ctx, req.Principal, req.Data)
	}
}

func (s *Service) SetAppCheckRequiredFunc() callable.Func {
	return func(ctx context.Context, req callable.Request) (any, error) {
		return s.SetAppCheckRequired(ctx, req.Principal, req.Data)
	}
}
