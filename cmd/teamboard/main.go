package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamboard/internal/config"
	"teamboard/internal/db"
	"teamboard/internal/domain"
	"teamboard/internal/engine"
	"teamboard/internal/logging"
	"teamboard/internal/migrate"
	"teamboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "teamboard",
	Short: "Teamboard project management API",
	Long: `Teamboard is a project management backend: projects with teams,
kanban lists, tasks with per-member hour tracking, subtasks, and
reusable task templates, behind a role-aware HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		_, err := db.EnsureWorkspace(workspace)
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	rootCmd.PersistentFlags().String("log-file", "", "rotated log file (empty: stderr only)")
	rootCmd.PersistentFlags().String("jwt-secret", "", "HS256 signing secret")
	rootCmd.PersistentFlags().Duration("token-ttl", 24*time.Hour, "issued token lifetime")
	// Each viper key binds to exactly one flag; a second BindPFlag for
	// the same key would silently shadow the first.
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("jwt-secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("token-ttl", rootCmd.PersistentFlags().Lookup("token-ttl"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedTemplatesCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(templateCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromViper()
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

			conn, err := db.Open(db.Config{Workspace: cfg.Workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			e := engine.New(conn)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL, Logger: logger},
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.WithField("addr", cfg.Addr).Info("serving teamboard api")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", "/v1", "API base path")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrated", db.Path(viper.GetString("workspace")))
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userAddCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var username, email, password string
	var admin bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				role := domain.RoleUser
				if admin {
					role = domain.RoleAdmin
				}
				u, err := e.Register(ctx, engine.RegisterOptions{
					Username: username,
					Email:    email,
					Password: password,
					Role:     role,
				})
				if err != nil {
					return err
				}
				fmt.Println(u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("--jwt-secret or TEAMBOARD_JWT_SECRET required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUser(ctx, userID)
				if err != nil {
					return err
				}
				token, err := server.MintToken(server.AuthConfig{JWTSecret: secret, TokenTTL: viper.GetDuration("token-ttl")}, u)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func seedTemplatesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Seed task templates from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := config.LoadSeedFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				templates := make([]domain.TaskTemplate, 0, len(sf.Templates))
				for _, t := range sf.Templates {
					templates = append(templates, t.Domain())
				}
				n, err := e.SeedTemplates(ctx, templates)
				if err != nil {
					return err
				}
				fmt.Printf("seeded %d templates\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "templates.yml", "seed file path")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(projectListCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Name", "Status", "Team", "Lists", "Hours"})
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.Name, p.CreationStatus, len(p.TeamMembers), len(p.Lists), p.AllocatedHours})
				}
				t.Render()
				return nil
			})
		},
	}
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Inspect task templates"}
	tpl.AddCommand(templateListCmd())
	return tpl
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List task templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Name", "Lists", "Tasks"})
				for _, tpl := range items {
					tasks := 0
					for _, l := range tpl.Lists {
						tasks += len(l.Tasks)
					}
					t.AppendRow(table.Row{tpl.ID, tpl.Name, len(tpl.Lists), tasks})
				}
				t.Render()
				return nil
			})
		},
	}
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
