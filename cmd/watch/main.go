package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tasca/payment-gateway/internal/adapter/secondary/apiclient"
	"github.com/tasca/payment-gateway/internal/config"
	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/core/monitor"
)

func main() {
	config.LoadEnv()

	apiURL := flag.String("api", "http://localhost:8080", "payment API base URL")
	reference := flag.String("reference", "", "payment reference to watch")
	expires := flag.String("expires", "", "expiration time (RFC3339), defaults to the one stored for the payment")
	interval := flag.Duration("interval", 15*time.Second, "status polling interval")
	token := flag.String("token", os.Getenv("PAYMENT_API_TOKEN"), "optional bearer token")
	flag.Parse()

	if *reference == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(*apiURL, *token, 30*time.Second)

	payment, err := client.GetPayment(ctx, *reference)
	if err != nil {
		log.Fatalf("Failed to load payment %s: %v", *reference, err)
	}

	session := core.PaymentSession{
		Reference: payment.Reference,
		Method:    payment.Method,
		Amount:    payment.Amount,
		Status:    payment.Status,
		ExpiresAt: payment.ExpirationTime,
	}
	if *expires != "" {
		t, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			log.Fatalf("Invalid -expires: %v", err)
		}
		session.ExpiresAt = &t
	}

	fmt.Printf("Watching %s (%s, %s)\n", session.Reference, session.Method, core.FormatAmount(session.Amount))

	m := monitor.New(session, monitor.StatusCheckerFunc(client.CheckStatus), monitor.CancellerFunc(client.Cancel), monitor.Options{
		PollInterval: *interval,
		OnTick: func(remaining time.Duration) {
			fmt.Printf("\rTime left: %s", core.FormatRemaining(remaining))
		},
		OnError: func(err error) {
			fmt.Printf("\nStatus check failed, retrying: %v\n", err)
		},
	})
	m.Subscribe(func(t core.Transition) {
		fmt.Printf("\n%s: %s -> %s\n", t.Reference, t.From, t.To)
	})

	final := m.Run(ctx)
	stop()
	switch final {
	case core.PaymentStatusPaid:
		fmt.Println("Payment confirmed")
		os.Exit(0)
	case core.PaymentStatusPending:
		fmt.Println("\nStopped while still pending")
		os.Exit(3)
	default:
		fmt.Printf("Payment %s\n", final)
		os.Exit(1)
	}
}
