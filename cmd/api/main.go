package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/api"
	"github.com/zelapay/ledgercore/internal/config"
	"github.com/zelapay/ledgercore/internal/events"
	"github.com/zelapay/ledgercore/internal/fees"
	"github.com/zelapay/ledgercore/internal/service"
	"github.com/zelapay/ledgercore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ledgerStore, err := store.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer ledgerStore.Close()

	feePolicy := buildFeePolicy(cfg.FeePercent)

	bus := events.NewBus()
	go logNotifications(bus.Subscribe(256))

	transfers := service.NewTransferService(ledgerStore.Db, feePolicy, bus, cfg.OpTimeout)
	requests := service.NewRequestService(ledgerStore.Db, feePolicy, bus, cfg.OpTimeout)
	treasury := service.NewTreasuryService(ledgerStore.Db, bus, cfg.OpTimeout)
	chains := service.NewChainService(ledgerStore.Db, feePolicy, bus, cfg.OpTimeout)

	handler := api.NewHandler(ledgerStore, transfers, requests, treasury, chains)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", handler.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}", handler.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/transactions", handler.GetAccountTransactionsHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/chain-entries", handler.GetAccountChainEntriesHandler).Methods("GET")
	apiV1.HandleFunc("/transfers", handler.CreateTransferHandler).Methods("POST")
	apiV1.HandleFunc("/transactions/{id}", handler.GetTransactionHandler).Methods("GET")
	apiV1.HandleFunc("/requests", handler.CreateRequestHandler).Methods("POST")
	apiV1.HandleFunc("/requests/{id}/accept", handler.AcceptRequestHandler).Methods("POST")
	apiV1.HandleFunc("/requests/{id}/reject", handler.RejectRequestHandler).Methods("POST")
	apiV1.HandleFunc("/treasury/withdrawals", handler.TreasuryWithdrawHandler).Methods("POST")
	apiV1.HandleFunc("/admin/transfers", handler.AdminTransferHandler).Methods("POST")
	apiV1.HandleFunc("/chain/{chainId}", handler.GetChainEntryHandler).Methods("GET")
	apiV1.HandleFunc("/chain/{chainId}/verify", handler.VerifyChainHandler).Methods("GET")
	apiV1.HandleFunc("/chain/{chainId}/repair", handler.RepairChainHandler).Methods("POST")

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func buildFeePolicy(percent string) fees.Policy {
	if percent == "" {
		return fees.Free{}
	}
	p, err := decimal.NewFromString(percent)
	if err != nil {
		log.Fatalf("invalid FEE_PERCENT %q: %v", percent, err)
	}
	return fees.FlatPercent{Percent: p, Min: decimal.Zero}
}

// logNotifications stands in for the external notification collaborator: it
// drains post-commit events on its own goroutine and can never slow the core.
func logNotifications(ch <-chan events.Event) {
	for ev := range ch {
		log.Printf("event: %s %v", ev.Kind, ev.Payload)
	}
}
