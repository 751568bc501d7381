package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/logging"
)

// SeedWorkspaceData parses every file of the request and persists the combined
// records in one call. Row-level parse failures are counted, not fatal; an
// unreadable file or a persistence failure fails the whole call.
func (s *Service) SeedWorkspaceData(ctx context.Context, req SeedRequest) (SeedResult, error) {
	if err := validateStruct(req); err != nil {
		return SeedResult{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return SeedResult{}, err
	}
	defer s.limiter.Release()

	opts := req.Options
	if opts.BatchSize == 0 {
		opts.BatchSize = s.defaultBatchSize
	}

	scope := scopeKey(req.TenantID, req.WorkspaceID)
	logger := logging.WithFields(ctx,
		"tenant_id", scope,
		"workspace_id", req.WorkspaceID,
		"operation", OpDataSeed,
	)

	details := DataSeedDetails{
		WorkspaceID:  req.WorkspaceID,
		TenantID:     req.TenantID,
		DataType:     req.DataType,
		FileCount:    len(req.Files),
		ParseResults: []FileParseResult{},
		Options:      opts,
	}

	entry, err := s.begin(ctx, scope, OpDataSeed,
		fmt.Sprintf("seeding %d %s file(s)", len(req.Files), req.DataType), details)
	if err != nil {
		return SeedResult{}, err
	}

	start := time.Now()
	result := SeedResult{}
	fail := func(err error) (SeedResult, error) {
		details.ProcessingTimeMs = time.Since(start).Milliseconds()
		result.ProcessingTimeMs = details.ProcessingTimeMs
		logged, finErr := s.finish(ctx, logger, entry, "workspace seeding failed", details, err)
		err = joinFinish(err, finErr)
		result.Error = err.Error()
		result.Logs = []LogEntry{logged}
		return result, err
	}

	var records []Record
	for _, file := range req.Files {
		parsed, err := s.parser.Parse(ctx, file, req.DataType)
		if err != nil {
			return fail(err)
		}

		records = append(records, parsed.Records...)
		details.ParseResults = append(details.ParseResults, parsed.Summary())
		details.TotalRecords += parsed.TotalRecords
		details.FailedRecords += parsed.FailedRecords

		result.ProcessedFiles++
		result.TotalRecords += parsed.TotalRecords
		result.FailedRecords += parsed.FailedRecords

		logger.Debug("file parsed",
			"file", parsed.Filename,
			"type", parsed.DetectedType,
			"parsed", parsed.ParsedRecords,
			"failed", parsed.FailedRecords,
		)
	}

	if opts.AutoCategorize {
		AutoCategorize(records, req.DataType)
	}

	persist := PersistOptions{
		Overwrite:      opts.OverwriteExisting,
		AutoCategorize: opts.AutoCategorize,
		BatchSize:      opts.BatchSize,
	}
	err = s.call(ctx, "persistRecords", func(ctx context.Context) error {
		return s.backend.PersistRecords(ctx, req.WorkspaceID, req.DataType, records, persist)
	})
	if err != nil {
		return fail(err)
	}

	details.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.ProcessingTimeMs = details.ProcessingTimeMs

	msg := fmt.Sprintf("seeded %d of %d records from %d file(s)",
		result.TotalRecords-result.FailedRecords, result.TotalRecords, result.ProcessedFiles)
	logged, finErr := s.finish(ctx, logger, entry, msg, details, nil)
	result.Logs = []LogEntry{logged}
	if finErr != nil {
		result.Error = finErr.Error()
		return result, finErr
	}
	result.Success = true
	return result, nil
}

// AutoCategorize fills in a category for records that have none: the first
// tag when present, otherwise the data type's default category.
func AutoCategorize(records []Record, dt DataType) {
	schema, _ := SchemaFor(dt)
	for i := range records {
		if records[i].Category != "" {
			continue
		}
		if len(records[i].Tags) > 0 {
			records[i].Category = records[i].Tags[0]
			continue
		}
		records[i].Category = schema.DefaultCategory
	}
}
