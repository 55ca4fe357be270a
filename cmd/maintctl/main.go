// maintctl is a small CLI consumer of the MaintBoard client SDK. It
// wires the full session stack (scoped storage, tenant resolver,
// session store, HTTP pipeline, coordinator) and drives it against a
// deployment, by default the local stub server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maintboard/maintboard-go/aijobs"
	"github.com/maintboard/maintboard-go/coordinator"
	"github.com/maintboard/maintboard-go/httpclient"
	"github.com/maintboard/maintboard-go/internal/config"
	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/storage"
	"github.com/maintboard/maintboard-go/tenants"
	"github.com/maintboard/maintboard-go/workorders"
)

var (
	flagBase    string
	flagTenant  string
	flagEmail   string
	flagPass    string
	flagVerbose bool
)

type stack struct {
	storage     *storage.Store
	sessions    *sessions.Store
	resolver    *tenants.Resolver
	client      *httpclient.Client
	coordinator *coordinator.Coordinator
}

func buildStack() (*stack, error) {
	cfg := config.New()

	if err := os.MkdirAll(cfg.GetDataFolder(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data folder: %w", err)
	}

	store := storage.New(cfg)
	sessionStore := sessions.NewStore(sessions.WithRoleOverride(cfg.RoleOverrideEnabled()))
	store.BindScope(
		func() string {
			if tenant, ok := sessionStore.ActiveTenant(); ok {
				return tenant.SchemaName
			}
			return ""
		},
		func() string {
			if snapshot := sessionStore.Snapshot(); snapshot.User != nil {
				return snapshot.User.ID
			}
			return ""
		},
	)

	resolver := tenants.NewResolver(cfg, store, tenants.WithSession(sessionStore))
	if flagTenant != "" {
		schema := tenants.NormalizeSchemaName(flagTenant)
		resolver.SetOverride(&tenants.Tenant{
			SchemaName: schema,
			Slug:       schema,
			Name:       tenants.BrandForSlug(schema).Name,
			Features:   []string{},
		})
	}

	clientOpts := []httpclient.ClientOption{}
	if flagBase != "" {
		clientOpts = append(clientOpts, httpclient.WithBaseURL(flagBase))
	}
	client, err := httpclient.New(cfg, resolver, sessionStore, store, clientOpts...)
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(cfg, client, sessionStore, store, resolver)
	if err != nil {
		return nil, err
	}
	return &stack{
		storage:     store,
		sessions:    sessionStore,
		resolver:    resolver,
		client:      client,
		coordinator: coord,
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "maintctl",
		Short: "MaintBoard maintenance-management CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if flagVerbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		},
	}
	root.PersistentFlags().StringVar(&flagBase, "base", "", "base URL of the deployment (default: profile resolution)")
	root.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant slug override")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	login := &cobra.Command{
		Use:   "login",
		Short: "Establish a session and print the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.storage.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := s.coordinator.Login(ctx, flagEmail, flagPass); err != nil {
				return err
			}
			printIdentity(s.sessions)
			return nil
		},
	}
	login.Flags().StringVar(&flagEmail, "email", "", "account email")
	login.Flags().StringVar(&flagPass, "password", "", "account password")
	_ = login.MarkFlagRequired("email")
	_ = login.MarkFlagRequired("password")

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Hydrate the session and print the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.storage.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := s.coordinator.EnsureHydrated(ctx); err != nil {
				return err
			}
			printIdentity(s.sessions)
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the session and purge local tenant state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.storage.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := s.coordinator.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}

	workOrdersCmd := &cobra.Command{Use: "workorders", Short: "Work order operations"}
	workOrdersCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the tenant's work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.storage.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := s.coordinator.Login(ctx, flagEmail, flagPass); err != nil {
				return err
			}
			orders, err := workorders.NewClient(s.client).List(ctx)
			if err != nil {
				return err
			}
			for _, order := range orders {
				fmt.Printf("%-10s %-12s %-8s %s\n", order.ID, order.Status, order.Priority, order.Title)
			}
			return nil
		},
	})
	workOrdersCmd.PersistentFlags().StringVar(&flagEmail, "email", "", "account email")
	workOrdersCmd.PersistentFlags().StringVar(&flagPass, "password", "", "account password")

	assist := &cobra.Command{
		Use:   "assist [prompt]",
		Short: "Run an AI assistant job and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.storage.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := s.coordinator.Login(ctx, flagEmail, flagPass); err != nil {
				return err
			}
			jobs := aijobs.NewClient(s.client)
			job, err := jobs.Submit(ctx, args[0])
			if err != nil {
				return err
			}
			job, err = jobs.Await(ctx, job.ID, 2*time.Second)
			if err != nil {
				return err
			}
			fmt.Printf("job %s: %s\n%s\n", job.ID, job.Status, string(job.Result))
			return nil
		},
	}
	assist.Flags().StringVar(&flagEmail, "email", "", "account email")
	assist.Flags().StringVar(&flagPass, "password", "", "account password")

	root.AddCommand(login, logout, whoami, workOrdersCmd, assist)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printIdentity(sessionStore *sessions.Store) {
	snapshot := sessionStore.Snapshot()
	if !snapshot.IsAuthenticated || snapshot.User == nil {
		fmt.Println("not signed in")
		return
	}
	fmt.Printf("%s <%s> role=%s tenant=%s\n",
		snapshot.User.Name, snapshot.User.Email,
		sessionStore.EffectiveRole(), snapshot.Tenant.SchemaName)
}
