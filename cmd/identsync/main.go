// identsync es el CLI de operaciones: consultas al directorio por HTTP y un
// flujo de onboarding interactivo contra el proveedor configurado.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/identsync/internal/app"
	"github.com/dropDatabas3/identsync/internal/config"
	"github.com/dropDatabas3/identsync/internal/directory"
	"github.com/dropDatabas3/identsync/internal/directory/rest"
	"github.com/dropDatabas3/identsync/internal/flow"
)

func main() {
	var (
		baseURL    = envOr("IDENTSYNC_URL", "http://localhost:8080")
		configPath = envOr("IDENTSYNC_CONFIG", "configs/config.yaml")
	)

	root := &cobra.Command{
		Use:   "identsync",
		Short: "CLI de operaciones del directorio de usuarios",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env IDENTSYNC_URL)")
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Path de config YAML (env IDENTSYNC_CONFIG)")

	dir := func() *rest.Client { return rest.New(baseURL) }

	// ─── directory ───
	dirCmd := &cobra.Command{Use: "directory", Short: "Operaciones sobre el directorio (vía HTTP)"}

	checkCmd := &cobra.Command{
		Use:   "check <email>",
		Short: "Consultar si un email existe en el directorio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dir().Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Exists {
				fmt.Printf("exists name=%q\n", res.FullName)
			} else {
				fmt.Println("not found")
			}
			return nil
		},
	}

	var saveUserID, saveName string
	saveCmd := &cobra.Command{
		Use:   "save <email>",
		Short: "Crear la fila del directorio si no existe (idempotente)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if saveUserID == "" {
				return fmt.Errorf("--user-id es requerido")
			}
			created, err := dir().Upsert(cmd.Context(), directory.Record{
				Email:    args[0],
				UserID:   saveUserID,
				FullName: saveName,
			})
			if err != nil {
				return err
			}
			if created {
				fmt.Println("created")
			} else {
				fmt.Println("already exists")
			}
			return nil
		},
	}
	saveCmd.Flags().StringVar(&saveUserID, "user-id", "", "user_id del proveedor de identidad")
	saveCmd.Flags().StringVar(&saveName, "name", "", "Nombre completo (opcional)")

	deleteCmd := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Borrar la fila del directorio por user_id (idempotente)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := dir().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("rows=%d\n", rows)
			return nil
		},
	}

	dirCmd.AddCommand(checkCmd, saveCmd, deleteCmd)

	// ─── login interactivo ───
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Flujo de onboarding interactivo contra el proveedor configurado",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			return runLogin(cmd.Context(), cfg, dir())
		},
	}

	root.AddCommand(dirCmd, loginCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// runLogin maneja el loop de pasos de la máquina de onboarding por consola.
func runLogin(ctx context.Context, cfg *config.Config, dir *rest.Client) error {
	prov := app.BuildProvider(cfg)
	m := flow.New(prov, dir)
	in := bufio.NewScanner(os.Stdin)

	base := strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	loginURL := base + cfg.Session.EntryPath
	resetURL := base + "/reset"

	prompt := func(label string) (string, bool) {
		fmt.Print(label)
		if !in.Scan() {
			return "", false
		}
		return strings.TrimSpace(in.Text()), true
	}

	for {
		if n := m.Notification(); n != nil {
			fmt.Printf("[%s] %s — %s\n", n.Kind, n.Title, n.Subtitle)
			m.DismissNotification()
		}

		switch m.Step() {
		case flow.StepIdentify:
			v, ok := prompt("email> ")
			if !ok {
				return nil
			}
			if err := m.SubmitEmail(ctx, v); err != nil {
				return err
			}
			if fe := m.FieldError("email"); fe != "" {
				fmt.Println(fe)
				m.ClearField("email")
			}

		case flow.StepLogin:
			fmt.Println(m.Greeting())
			v, ok := prompt("password> ")
			if !ok {
				return nil
			}
			if err := m.SubmitLogin(ctx, v); err != nil {
				return err
			}

		case flow.StepNameCapture:
			v, ok := prompt("full name> ")
			if !ok {
				return nil
			}
			if err := m.SubmitName(ctx, v); err != nil {
				return err
			}
			if fe := m.FieldError("full_name"); fe != "" {
				fmt.Println(fe)
				m.ClearField("full_name")
			}

		case flow.StepChannelSelect:
			v, ok := prompt("channel (email/whatsapp)> ")
			if !ok {
				return nil
			}
			if strings.EqualFold(v, "whatsapp") {
				m.ChooseWhatsAppChannel()
			} else if err := m.ChooseEmailChannel(ctx); err != nil {
				return err
			}

		case flow.StepWhatsAppCapture:
			v, ok := prompt("phone (+123...)> ")
			if !ok {
				return nil
			}
			if err := m.SubmitPhone(ctx, v); err != nil {
				return err
			}

		case flow.StepOTP:
			v, ok := prompt("code> ")
			if !ok {
				return nil
			}
			if err := m.SubmitOTP(ctx, v); err != nil {
				return err
			}

		case flow.StepCreatePassword:
			v, ok := prompt("new password> ")
			if !ok {
				return nil
			}
			if err := m.SubmitPassword(ctx, v); err != nil {
				return err
			}
			if fe := m.FieldError("password"); fe != "" {
				fmt.Println(fe)
				m.ClearField("password")
			}

		case flow.StepForgotPassword:
			if err := m.SubmitForgotPassword(ctx, loginURL, resetURL); err != nil {
				return err
			}

		case flow.StepDone:
			fmt.Printf("signed in: user_id=%s session=%s...\n",
				m.UserID(), truncate(m.SessionToken(), 16))
			return nil
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
