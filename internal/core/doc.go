// Package core provides the business logic for tenant initialization.
//
// This package contains the orchestration of a newly provisioned tenant,
// independent of any transport. It can be used by web handlers, CLI tools,
// or tests without modification.
//
// # Architecture
//
//   - Ledger: append-only log of every tracked operation ([Ledger], [MemoryLedger]).
//   - Connection Registry: per-tenant database descriptors ([ConnectionRegistry]).
//   - Parser: turns uploaded files into [Record] values ([Parser]).
//   - Service: the entry point for all operations ([Service]).
//   - Backend: collaborator interfaces implemented by internal/storage ([Backend]).
//
// # Operation Flow
//
// Callers run the stages in order; nothing here enforces it:
//
//  1. [Service.InitializeTenantDatabase] creates tables and collections,
//     relational first, one database_init entry per connection kind.
//  2. [Service.SeedWorkspaceData] parses every file, then persists the
//     combined records in a single [ContentBackend.PersistRecords] call.
//  3. [Service.ApplyWorkspaceConfig] builds the vector index, registers
//     trigger rules and syncs categories, in that order.
//
// Each stage appends an in_progress entry before it starts and finishes it
// exactly once. [Service.GetInitializationStatus] recomputes status from the
// ledger on every call.
//
// # Record Schemas
//
// Each data type registers a [RecordSchema] at init time listing the column
// names accepted for title, content, category and tags:
//
//	core.RegisterSchema(RecordSchema{
//	    DataType:        DataFAQ,
//	    TitleAliases:    []string{"question", "q", "title"},
//	    ContentAliases:  []string{"answer", "a", "content"},
//	    DefaultCategory: "faq",
//	})
//
// # Error Handling
//
// Errors are classified with [IsNotFound], [IsValidation] and [IsExternalCall],
// plus the sentinels [ErrUnreadableFile] and [ErrTooManyOperations].
// [MapError] turns any of them into a [UserMessage] with a support code
// (TEN, VAL, FILE, EXT, OPS).
package core
