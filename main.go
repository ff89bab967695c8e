package main

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filpass_credits/chainrpc"
	"github.com/filpass_credits/config"
	"github.com/filpass_credits/credit"
	"github.com/filpass_credits/fil"
	"github.com/filpass_credits/handler"
	"github.com/filpass_credits/jobs"
	"github.com/filpass_credits/model"
	"github.com/filpass_credits/repository"
	"github.com/filpass_credits/router"
	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("migrating database: %v", err)
	}

	signKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.TicketPrivateKey))
	if err != nil {
		log.Fatalf("parsing ticket signing key: %v", err)
	}
	verifyKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.TicketPublicKey))
	if err != nil {
		log.Fatalf("parsing ticket verification key: %v", err)
	}
	minPerTicket, err := fil.ParseFIL(cfg.MinCreditPerTicket)
	if err != nil {
		log.Fatalf("parsing min credit per ticket: %v", err)
	}

	ethClient, err := ethclient.Dial(cfg.ChainRPCURL)
	if err != nil {
		log.Fatalf("dialing chain rpc: %v", err)
	}
	chainClient, err := chainrpc.Dial(cfg.ChainRPCURL)
	if err != nil {
		log.Fatalf("dialing filecoin rpc: %v", err)
	}

	// A local hex key signs EVM-style; an f-address delegates signing to the
	// node wallet and submits through the Filecoin message pool.
	var submitter credit.Submitter
	if cfg.SystemWalletKey != "" {
		submitter, err = credit.NewEthSubmitter(cfg.ChainRPCURL, cfg.ContractAddress, cfg.SystemWalletKey, cfg.ChainID)
	} else {
		submitter, err = credit.NewFilecoinSubmitter(chainClient, cfg.SystemWalletAddress, cfg.ContractAddress)
	}
	if err != nil {
		log.Fatalf("creating ticket submitter: %v", err)
	}

	creditService := credit.NewCreditService(db)
	ticketService := credit.NewTicketService(db, credit.TicketServiceOptions{
		SignKey:             signKey,
		KeyID:               cfg.TicketKeyID,
		IssuerURL:           cfg.IssuerURL,
		MinCreditPerTicket:  minPerTicket,
		MaxTicketsPerLedger: cfg.MaxTicketsPerLedger,
	})
	redeemService := credit.NewRedeemService(db, credit.RedeemServiceOptions{
		VerifyKey:        verifyKey,
		Submitter:        submitter,
		DailyRedeemLimit: cfg.DailyRedeemLimit,
	})

	verifyJob := jobs.NewVerifyTransfersJob(db, chainClient, jobs.VerifyTransfersOptions{
		BatchSize:     cfg.VerifyBatchSize,
		RatePerSecond: jobs.RateForSpacing(cfg.VerifyMinSpacing),
		MaxAttempts:   cfg.MaxVerifyAttempts,
	})
	confirmJob, err := jobs.NewConfirmDepositsJob(db, ethClient, jobs.ConfirmDepositsOptions{
		LockDays: cfg.LockDays,
	})
	if err != nil {
		log.Fatalf("creating deposit confirmation job: %v", err)
	}

	go runConfirmLoop(confirmJob)

	creditHandler := handler.NewCreditHandler(
		creditService,
		ticketService,
		redeemService,
		verifyJob,
		repository.NewTicketRepository(db),
	)

	r := router.SetupRouter(creditHandler)
	log.Printf("credit service listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// runConfirmLoop polls for deposit receipts once a minute.
func runConfirmLoop(job *jobs.ConfirmDepositsJob) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
		if err := job.Run(ctx); err != nil {
			log.Printf("deposit confirmation run: %v", err)
		}
		cancel()
	}
}
