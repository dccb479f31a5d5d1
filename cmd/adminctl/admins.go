package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/rbac"
)

var (
	bootstrapSubject string
	bootstrapEmail   string

	grantActor   string
	grantSubject string
	grantEmail   string
	grantRole    string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first admin as owner of an empty directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDirectory(cmd, func(ctx context.Context, dir *directory.Service, rec *audit.Recorder) error {
			admin, err := dir.Bootstrap(ctx, bootstrapSubject, bootstrapEmail)
			if err != nil {
				return err
			}
			rec.Record(ctx, admin.SubjectID, "admins:bootstrap", map[string]any{
				"subject_id": admin.SubjectID,
				"role":       admin.Role,
				"via":        "adminctl",
			})
			return printJSON(cmd, admin)
		})
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant an admin role on behalf of an existing admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, ok := rbac.ParseRole(grantRole)
		if !ok {
			return fmt.Errorf("unknown role %q", grantRole)
		}
		return withDirectory(cmd, func(ctx context.Context, dir *directory.Service, rec *audit.Recorder) error {
			actor, err := dir.Lookup(ctx, grantActor)
			if err != nil {
				return fmt.Errorf("actor %q: %w", grantActor, err)
			}
			admin, err := dir.Grant(ctx, directory.Actor{SubjectID: actor.SubjectID, Role: actor.Role}, grantSubject, grantEmail, role)
			if err != nil {
				return err
			}
			rec.Record(ctx, actor.SubjectID, "admins:grant", map[string]any{
				"subject_id": admin.SubjectID,
				"email":      admin.Email,
				"role":       admin.Role,
				"via":        "adminctl",
			})
			return printJSON(cmd, admin)
		})
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapSubject, "subject", "", "identity provider subject id")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "contact email")
	_ = bootstrapCmd.MarkFlagRequired("subject")

	grantCmd.Flags().StringVar(&grantActor, "actor", "", "subject id of the granting admin")
	grantCmd.Flags().StringVar(&grantSubject, "subject", "", "subject id to grant")
	grantCmd.Flags().StringVar(&grantEmail, "email", "", "contact email")
	grantCmd.Flags().StringVar(&grantRole, "role", string(rbac.RoleSupport), "role to grant")
	_ = grantCmd.MarkFlagRequired("actor")
	_ = grantCmd.MarkFlagRequired("subject")
}

// withDirectory wires the directory and a synchronous recorder to the database.
func withDirectory(cmd *cobra.Command, fn func(context.Context, *directory.Service, *audit.Recorder) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	dir, err := directory.NewService(store)
	if err != nil {
		return err
	}
	rec := audit.NewRecorder(store, audit.WithProfiles(store), audit.WithLogger(obs.Logger()))
	return fn(ctx, dir, rec)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
