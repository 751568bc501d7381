package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/client"
	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/JonMunkholm/tenantinit/internal/storage"
	"github.com/spf13/cobra"
)

// ----------------------------------------------------------------------------
// connections
// ----------------------------------------------------------------------------

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage tenant database connections",
}

var connInput client.ConnectionInput

var registerConnCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a tenant database connection",
	Long:  `Register a relational or document database for a tenant. The password is sealed by the server before storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if connInput.Password == "" {
			connInput.Password = os.Getenv("TENANTINIT_DB_PASSWORD")
		}
		d, err := newClient().RegisterConnection(cmd.Context(), connInput)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(d)
		}
		fmt.Printf("Registered %s connection %s for tenant %s\n", d.Kind, d.ID, d.TenantID)
		return nil
	},
}

var listConnCmd = &cobra.Command{
	Use:   "list [tenant-id]",
	Short: "List a tenant's active connections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conns, err := newClient().ListConnections(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(conns)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tHOST\tPORT\tDATABASE\tSTATUS\tCREATED")
		for _, c := range conns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				c.ID, c.Kind, c.Host, c.Port, c.DatabaseName, c.Status, c.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// ----------------------------------------------------------------------------
// operations
// ----------------------------------------------------------------------------

var initCmd = &cobra.Command{
	Use:   "init [tenant-id]",
	Short: "Initialize a tenant's databases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newClient().InitializeDatabase(cmd.Context(), args[0])
		if asJSON {
			if perr := printJSON(env); perr != nil {
				return perr
			}
			return err
		}
		printLogs(env.Logs)
		if err != nil {
			return err
		}
		fmt.Printf("Initialized: %s\n", joinKinds(env.InitializedKinds))
		return nil
	},
}

var seedReq core.SeedRequest

var seedCmd = &cobra.Command{
	Use:   "seed [file...]",
	Short: "Seed a workspace from files",
	Long:  `Upload CSV, JSON, XLSX, PDF, Markdown or text files and persist their records into a workspace.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			seedReq.Files = append(seedReq.Files, core.UploadedFile{Name: filepath.Base(path), Content: data})
		}

		env, err := newClient().SeedWorkspace(cmd.Context(), seedReq)
		if asJSON {
			if perr := printJSON(env); perr != nil {
				return perr
			}
			return err
		}
		printLogs(env.Logs)
		if err != nil {
			return err
		}
		if r := env.Data; r != nil {
			fmt.Printf("Processed %d file(s): %d records, %d failed, %dms\n",
				r.ProcessedFiles, r.TotalRecords, r.FailedRecords, r.ProcessingTimeMs)
		}
		return nil
	},
}

var configReq core.ConfigRequest

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Apply workspace configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newClient().ApplyConfig(cmd.Context(), configReq)
		if asJSON {
			if perr := printJSON(env); perr != nil {
				return perr
			}
			return err
		}
		printLogs(env.Logs)
		if err != nil {
			return err
		}
		if r := env.Data; r != nil {
			ops := make([]string, len(r.AppliedOperations))
			for i, op := range r.AppliedOperations {
				ops[i] = string(op)
			}
			fmt.Printf("Applied: %s\n", orNone(strings.Join(ops, ", ")))
		}
		return nil
	},
}

// ----------------------------------------------------------------------------
// queries
// ----------------------------------------------------------------------------

var statusCmd = &cobra.Command{
	Use:   "status [tenant-id]",
	Short: "Show derived initialization status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(st)
		}

		fmt.Printf("Tenant:      %s\n", st.TenantID)
		fmt.Printf("Overall:     %s\n", st.OverallStatus)
		fmt.Printf("Relational:  %s\n", orNone(string(st.DatabaseStatus.Relational)))
		fmt.Printf("Document:    %s\n", orNone(string(st.DatabaseStatus.Document)))

		if len(st.WorkspaceStatus) > 0 {
			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKSPACE\tDATA SEEDING\tCONFIG APPLIED")
			for id, ws := range st.WorkspaceStatus {
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, ws.DataSeeding, ws.ConfigApplied)
			}
			return w.Flush()
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [tenant-id]",
	Short: "List ledger entries, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tenantID string
		if len(args) == 1 {
			tenantID = args[0]
		}
		entries, err := newClient().Logs(cmd.Context(), tenantID)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(entries)
		}
		printLogs(entries)
		return nil
	},
}

var genKeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a CREDENTIAL_KEY value",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := storage.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	f := registerConnCmd.Flags()
	f.StringVar(&connInput.TenantID, "tenant", "", "Tenant ID")
	f.StringVar(&connInput.Kind, "kind", "", "relational or document")
	f.StringVar(&connInput.Host, "host", "", "Database host")
	f.IntVar(&connInput.Port, "port", 0, "Database port")
	f.StringVar(&connInput.DatabaseName, "database", "", "Database name")
	f.StringVar(&connInput.Username, "user", "", "Database user")
	f.StringVar(&connInput.Password, "password", "", "Database password (env TENANTINIT_DB_PASSWORD)")
	for _, name := range []string{"tenant", "kind", "host", "port", "database"} {
		_ = registerConnCmd.MarkFlagRequired(name)
	}
	connectionsCmd.AddCommand(registerConnCmd, listConnCmd)

	f = seedCmd.Flags()
	f.StringVar(&seedReq.WorkspaceID, "workspace", "", "Workspace ID")
	f.StringVar(&seedReq.TenantID, "tenant", "", "Owning tenant ID")
	f.StringVar((*string)(&seedReq.DataType), "type", "", "documents, faq, manual, scenarios or templates")
	f.IntVar(&seedReq.Options.BatchSize, "batch-size", 0, "Records per insert batch")
	f.BoolVar(&seedReq.Options.OverwriteExisting, "overwrite", false, "Replace existing records of this type")
	f.BoolVar(&seedReq.Options.AutoCategorize, "auto-categorize", false, "Fill missing categories")
	_ = seedCmd.MarkFlagRequired("workspace")
	_ = seedCmd.MarkFlagRequired("type")

	f = configCmd.Flags()
	f.StringVar(&configReq.WorkspaceID, "workspace", "", "Workspace ID")
	f.StringVar(&configReq.TenantID, "tenant", "", "Owning tenant ID")
	f.BoolVar(&configReq.Operations.CreateVectorIndex, "vector-index", false, "Build the vector index")
	f.BoolVar(&configReq.Operations.RegisterTriggerRules, "trigger-rules", false, "Register trigger rules from scenarios")
	f.BoolVar(&configReq.Operations.SyncCategories, "sync-categories", false, "Sync categories from records")
	_ = configCmd.MarkFlagRequired("workspace")
}

func printLogs(entries []core.LogEntry) {
	if len(entries) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tOPERATION\tSTATUS\tMESSAGE\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format(time.RFC3339), e.OperationType, e.Status, e.Message, e.ErrorMessage)
	}
	_ = w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinKinds(kinds []core.ConnectionKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return orNone(strings.Join(out, ", "))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
