// Command shopctl drives the barbershop client from a terminal.
//
//	shopctl login -u ana -p password
//	shopctl shops
//	shopctl use 7
//	shopctl slots -barber b-leo -date 2030-01-15
//	shopctl book -service svc-cut -barber b-leo -at 2030-01-15T10:00:00Z -price 25 [-online]
//	shopctl whoami
//	shopctl logout
//
// Credentials live in the store selected by STORE_BACKEND; use redis to keep
// them between runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/app"
	"github.com/erauner12/shopbook/internal/booking"
	"github.com/erauner12/shopbook/internal/config"
	"github.com/erauner12/shopbook/internal/credstore"
)

const usage = `usage: shopctl <command> [flags]

commands:
  login    -u <username> -p <password>
  whoami
  shops
  use      <barbershop id> (empty string clears)
  slots    -barber <id> -date YYYY-MM-DD
  book     -service <id> -barber <id> -at <RFC3339> [-price n] [-notes s] [-online]
  logout
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", message(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("no command given")
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg, "shopctl")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	a := app.New(cfg, store)
	cmd, rest := args[0], args[1:]

	if cmd == "login" {
		return login(ctx, a, rest, out)
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(out, usage)
		return nil
	}

	state, err := a.Start(ctx)
	if err != nil {
		return err
	}

	if cmd == "logout" {
		if err := a.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "logged out")
		return nil
	}

	if !state.Authenticated {
		return errors.New("not logged in - run `shopctl login` first")
	}

	switch cmd {
	case "whoami":
		return whoami(ctx, a, out)
	case "shops":
		return shops(ctx, a, out)
	case "use":
		return use(ctx, a, rest, out)
	case "slots":
		return slots(ctx, a, rest, out)
	case "book":
		return book(ctx, a, rest, out)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (credstore.Store, func(), error) {
	if cfg.Store.Backend != config.StoreRedis {
		log.Debug().Msg("using in-memory credential store - login will not persist between runs")
		return credstore.NewMemoryStore(), func() {}, nil
	}

	rs, err := credstore.ConnectRedis(ctx, credstore.RedisConfig{
		Addr:   cfg.Store.RedisAddr,
		DB:     cfg.Store.RedisDB,
		Prefix: cfg.Store.RedisPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}, nil
}

func login(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	customer, err := a.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "logged in as %s (%s)\n", customer.Name, customer.ID)

	if active := a.Tenants.Active(); active != nil {
		fmt.Fprintf(out, "active barbershop: %s [%s]\n", active.Name, active.ID)
	} else if n := len(a.Tenants.Tenants()); n > 1 {
		fmt.Fprintf(out, "%d barbershops available - pick one with `shopctl use <id>`\n", n)
	}
	return nil
}

func whoami(ctx context.Context, a *app.App, out io.Writer) error {
	customer, err := a.Vault.Customer(ctx)
	if err != nil {
		return err
	}
	if customer != nil {
		fmt.Fprintf(out, "customer:  %s <%s> (%s)\n", customer.Name, customer.Email, customer.ID)
	}

	claims, err := a.Session.Claims(ctx)
	if err == nil {
		status := "valid"
		if claims.Expired() {
			status = "expired - will refresh on next call"
		}
		fmt.Fprintf(out, "token:     sub=%s exp=%s (%s)\n", claims.Subject, claims.ExpiresAt.Format(time.RFC3339), status)
	}

	if active := a.Tenants.Active(); active != nil {
		fmt.Fprintf(out, "shop:      %s [%s] role=%s\n", active.Name, active.ID, a.Tenants.Role())
	} else {
		fmt.Fprintln(out, "shop:      none")
	}
	return nil
}

func shops(ctx context.Context, a *app.App, out io.Writer) error {
	list, err := a.Tenants.Load(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		enroll, err := a.Tenants.EnrollmentRequired(ctx)
		if err != nil {
			return err
		}
		if enroll {
			fmt.Fprintln(out, "no barbershops yet - enrollment required")
		} else {
			fmt.Fprintln(out, "no barbershops")
		}
		return nil
	}

	var activeID string
	if active := a.Tenants.Active(); active != nil {
		activeID = active.ID.String()
	}
	for _, t := range list {
		marker := " "
		if t.ID.String() == activeID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-4s %-24s role=%-7s subscription=%s\n", marker, t.ID, t.Name, t.OwnerRole, t.SubscriptionStatus)
	}
	return nil
}

func use(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: shopctl use <barbershop id>")
	}
	active, err := a.Tenants.SetActive(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	if active == nil {
		fmt.Fprintln(out, "active barbershop cleared")
		return nil
	}
	name := active.Name
	if name == "" {
		name = "(not in your list)"
	}
	fmt.Fprintf(out, "active barbershop: %s [%s]\n", name, active.ID)
	return nil
}

func slots(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	barber := fs.String("barber", "", "barber id")
	date := fs.String("date", time.Now().Format(time.DateOnly), "date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.Availability.Fetch(ctx, *barber, *date)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "no open slots")
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(out, "%s - %s\n", s.Start.Format(time.RFC3339), s.End.Format("15:04"))
	}
	return nil
}

func book(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	service := fs.String("service", "", "service id")
	barber := fs.String("barber", "", "barber id")
	at := fs.String("at", "", "start time (RFC3339)")
	price := fs.Float64("price", 0, "price charged for online payment")
	notes := fs.String("notes", "", "notes for the barber")
	online := fs.Bool("online", false, "pay online")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		return fmt.Errorf("invalid -at: %w", err)
	}

	customerID, err := a.CustomerID(ctx)
	if err != nil {
		return err
	}

	form := booking.NewForm()
	form.Update(func(s *booking.Selection) {
		s.ServiceID = *service
		s.BarberID = *barber
		s.Date = start.Format(time.DateOnly)
		s.Time = start
		s.Price = *price
		s.Notes = *notes
	})

	method := booking.MethodCash
	if *online {
		method = booking.MethodOnline
	}

	outcome, err := a.Bookings.Submit(ctx, form, customerID, method)
	if outcome != nil {
		printOutcome(out, outcome)
	}
	return err
}

// printOutcome reports the booking as the server recorded it
func printOutcome(out io.Writer, o *booking.Outcome) {
	fmt.Fprintf(out, "booking %s created for %s (%s)\n", o.Booking.ID, o.Booking.Time.Format(time.RFC3339), o.Booking.PaymentStatus)
	fmt.Fprintf(out, "next: %s\n", o.Next)
	if o.Checkout != nil {
		fmt.Fprintf(out, "checkout: %s\n", o.Checkout.URL)
	}
}

// message renders err for the terminal
func message(err error) string {
	var pay booking.ErrPaymentInitiation
	switch {
	case errors.As(err, &pay):
		return "booking was created but payment could not be started: " + apiclient.ErrorMessage(pay.Err, "")
	case booking.IsSlotTaken(err):
		return booking.Message(err)
	case apiclient.IsTenantSuspended(err):
		return "This barbershop is currently unavailable. Pick another with `shopctl use <id>`."
	case apiclient.IsUnauthorized(err):
		return "Your session expired. Please log in again."
	}
	return booking.Message(err)
}
