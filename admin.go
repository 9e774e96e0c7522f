package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"admissions-go/internal/database"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/utils"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var readPasswordFunc = term.ReadPassword // mockable

func createAdminCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a super admin operator",
		Long: `Create an operator holding every permission. The password is prompted
without echo.

Examples:
  admissions create-admin --email ops@example.com --name "Ops Lead"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = utils.NormalizeEmail(email)
			if !utils.IsValidEmail(email) {
				return errors.Errorf("invalid email %q", email)
			}

			fmt.Print("Enter password: ")
			pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return errors.Wrap(err, "read password")
			}
			if !utils.IsComplexPassword(string(pwd)) {
				return errors.New("password needs 8+ characters with upper, lower, digit and symbol")
			}

			log, db, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := database.Migrate(db, log); err != nil {
				return err
			}

			users := repository.NewUserRepository(db)
			ctx := context.Background()
			role, err := users.EnsureRole(ctx, models.SuperAdminRole, models.AllPermissions)
			if err != nil {
				return errors.Wrap(err, "seed super admin role")
			}
			user, err := users.CreateUser(ctx, strings.TrimSpace(name), email, string(pwd), role.ID)
			if err != nil {
				return errors.Wrap(err, "create user")
			}
			color.Green("Created %s (id %d) with role %s", user.Email, user.ID, role.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Operator email (required)")
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func attendeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendees",
		Short: "Inspect attendees",
	}

	var testType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List attendees newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			var tt models.TestType
			if testType != "" {
				tt = models.ParseTestType(testType)
			}
			attendees, err := repository.NewAttendeeRepository(db).List(context.Background(), tt)
			if err != nil {
				return errors.Wrap(err, "list attendees")
			}

			color.Cyan("\n=== Attendees (%d) ===", len(attendees))
			renderAttendees(attendees)
			return nil
		},
	}
	list.Flags().StringVar(&testType, "type", "", "Filter by test type: scholarship or aptitude")
	cmd.AddCommand(list)
	return cmd
}

func renderAttendees(attendees []models.Attendee) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Email", "Name", "Type", "Status", "Score", "Discount", "Coupon", "Email/WA/Call"})

	for _, a := range attendees {
		table.Append([]string{
			a.Email,
			a.FullName,
			string(a.TestType),
			statusColor(a.Status),
			fmt.Sprintf("%d", a.Score),
			fmt.Sprintf("%d%%", a.DiscountPercent),
			a.Coupon(),
			fmt.Sprintf("%d/%d/%d", a.EmailSent, a.WhatsappSent, a.VoiceCallCount),
		})
	}

	table.Render()
}

func statusColor(s models.Status) string {
	switch s {
	case models.StatusPassed:
		return color.GreenString(string(s))
	case models.StatusFailed:
		return color.YellowString(string(s))
	case models.StatusDisqualified:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
