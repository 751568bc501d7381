package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/tenantinit/internal/logging"
)

// VectorIndexReady is reported once a vector index build call returns.
const VectorIndexReady = "ready"

// ApplyWorkspaceConfig runs the requested configuration operations in the
// fixed order vector index, trigger rules, category sync. The first failure
// ends the call; operations already applied are not rolled back.
func (s *Service) ApplyWorkspaceConfig(ctx context.Context, req ConfigRequest) (ConfigResult, error) {
	if err := validateStruct(req); err != nil {
		return ConfigResult{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return ConfigResult{}, err
	}
	defer s.limiter.Release()

	scope := scopeKey(req.TenantID, req.WorkspaceID)
	logger := logging.WithFields(ctx,
		"tenant_id", scope,
		"workspace_id", req.WorkspaceID,
		"operation", OpConfigApply,
	)

	details := ConfigApplyDetails{
		WorkspaceID:       req.WorkspaceID,
		TenantID:          req.TenantID,
		Requested:         req.Operations.List(),
		AppliedOperations: []ConfigOperation{},
	}

	entry, err := s.begin(ctx, scope, OpConfigApply,
		fmt.Sprintf("applying %d configuration operation(s)", len(details.Requested)), details)
	if err != nil {
		return ConfigResult{}, err
	}

	result := ConfigResult{AppliedOperations: []ConfigOperation{}}

	for _, op := range details.Requested {
		var opErr error
		switch op {
		case ConfigVectorIndex:
			opErr = s.call(ctx, "buildVectorIndex", func(ctx context.Context) error {
				return s.backend.BuildVectorIndex(ctx, req.WorkspaceID)
			})
			if opErr == nil {
				result.VectorIndexStatus = VectorIndexReady
			}
		case ConfigTriggerRules:
			var n int
			opErr = s.call(ctx, "registerTriggerRules", func(ctx context.Context) (err error) {
				n, err = s.backend.RegisterTriggerRules(ctx, req.WorkspaceID)
				return err
			})
			if opErr == nil {
				result.TriggerRulesCount = &n
			}
		case ConfigCategories:
			var n int
			opErr = s.call(ctx, "syncCategories", func(ctx context.Context) (err error) {
				n, err = s.backend.SyncCategories(ctx, req.WorkspaceID)
				return err
			})
			if opErr == nil {
				result.SyncedCategoriesCount = &n
			}
		}

		if opErr != nil {
			logged, finErr := s.finish(ctx, logger, entry,
				fmt.Sprintf("configuration failed at %s", op), result.details(details), opErr)
			err := joinFinish(opErr, finErr)
			result.Error = err.Error()
			result.Logs = []LogEntry{logged}
			return result, err
		}
		result.AppliedOperations = append(result.AppliedOperations, op)
	}

	logged, finErr := s.finish(ctx, logger, entry,
		fmt.Sprintf("applied %d configuration operation(s)", len(result.AppliedOperations)), result.details(details), nil)
	result.Logs = []LogEntry{logged}
	if finErr != nil {
		result.Error = finErr.Error()
		return result, finErr
	}
	result.Success = true
	return result, nil
}

// List returns the requested operations in execution order.
func (o ConfigOperations) List() []ConfigOperation {
	ops := []ConfigOperation{}
	if o.CreateVectorIndex {
		ops = append(ops, ConfigVectorIndex)
	}
	if o.RegisterTriggerRules {
		ops = append(ops, ConfigTriggerRules)
	}
	if o.SyncCategories {
		ops = append(ops, ConfigCategories)
	}
	return ops
}

func (r ConfigResult) details(d ConfigApplyDetails) ConfigApplyDetails {
	d.AppliedOperations = append([]ConfigOperation{}, r.AppliedOperations...)
	d.VectorIndexStatus = r.VectorIndexStatus
	d.TriggerRulesCount = r.TriggerRulesCount
	d.SyncedCategoriesCount = r.SyncedCategoriesCount
	return d
}
