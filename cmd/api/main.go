package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	ledgerproviders "github.com/provideplatform/attestation/ledger/providers"
	"github.com/provideplatform/attestation/messaging"
	"github.com/provideplatform/attestation/profile"
	"github.com/provideplatform/attestation/protocol"
	"github.com/provideplatform/attestation/store"
	cryptoproviders "github.com/provideplatform/attestation/zkp/providers"
	provide "github.com/provideplatform/provide-go/common"
	"github.com/provideplatform/provide-go/common/util"
)

const runloopSleepInterval = 250 * time.Millisecond
const runloopTickInterval = 5000 * time.Millisecond

var (
	cancelF     context.CancelFunc
	closing     uint32
	shutdownCtx context.Context
	sigs        chan os.Signal

	srv *http.Server
	wg  sync.WaitGroup

	outbox         messaging.Outbox
	deliveryClient messaging.Client
)

func main() {
	common.Log.Debug("starting attestation API...")
	util.RequireJWTVerifiers()
	installSignalHandlers()

	runAPI()

	timer := time.NewTicker(runloopTickInterval)
	defer timer.Stop()

	for !shuttingDown() {
		select {
		case <-timer.C:
			sweepOutbox()
		case sig := <-sigs:
			common.Log.Debugf("received signal: %s", sig)
			srv.Shutdown(shutdownCtx)
			shutdown()
		case <-shutdownCtx.Done():
			close(sigs)
		default:
			time.Sleep(runloopSleepInterval)
		}
	}

	common.Log.Debug("exiting attestation API")
	cancelF()
}

func installSignalHandlers() {
	common.Log.Debug("installing signal handlers for attestation API")
	sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	shutdownCtx, cancelF = context.WithCancel(context.Background())
}

func shutdown() {
	if atomic.AddUint32(&closing, 1) == 1 {
		common.Log.Debug("shutting down attestation API")
		cancelF()
	}
}

func shuttingDown() bool {
	return (atomic.LoadUint32(&closing) > 0)
}

// resolveUser returns the local party from the environment
func resolveUser() (*credential.User, error) {
	key := os.Getenv("ATTESTATION_USER_KEY")
	if key == "" {
		return nil, fmt.Errorf("failed to resolve attestation user; ATTESTATION_USER_KEY required")
	}

	privateKey, err := common.ResolveUserPrivateKey()
	if err != nil {
		return nil, err
	}

	return &credential.User{
		Key:        key,
		Email:      os.Getenv("ATTESTATION_USER_EMAIL"),
		PrivateKey: credential.Key{*privateKey},
	}, nil
}

// sweepOutbox redelivers messages stranded in the outbox
func sweepOutbox() {
	if outbox == nil || deliveryClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(shutdownCtx, runloopTickInterval)
	defer cancel()

	_, err := outbox.Sweep(ctx, deliveryClient)
	if err != nil {
		common.Log.Warningf("failed to sweep outbox; %s", err.Error())
	}
}

func requireOutbox() messaging.Outbox {
	if common.StoreProvider == store.StoreProviderDatabase {
		return messaging.NewDatabaseOutbox(nil)
	}
	return messaging.NewMemoryOutbox()
}

func requireEngine(records store.RecordStore, client messaging.Client, outbox messaging.Outbox) *protocol.Engine {
	user, err := resolveUser()
	if err != nil {
		common.Log.Panicf("%s", err.Error())
	}

	chain, err := ledgerproviders.LedgerProviderFactory(common.LedgerProvider)
	if err != nil {
		common.Log.Panicf("failed to initialize %s ledger provider; %s", common.LedgerProvider, err.Error())
	}

	metrics, err := protocol.NewPrometheusObserver(prometheus.DefaultRegisterer)
	if err != nil {
		common.Log.Panicf("failed to register protocol metrics; %s", err.Error())
	}

	engine, err := protocol.NewEngine(&protocol.Config{
		Store:     records,
		Ledger:    chain,
		Messaging: client,
		Crypto:    cryptoproviders.InitGnarkCryptoProvider(),
		Outbox:    outbox,
		Observer: protocol.MultiObserver{
			protocol.LogObserver{},
			metrics,
			protocol.NewNatsObserver(nil),
		},
		User:             user,
		MinConfirmations: common.LedgerMinConfirmations,
	})
	if err != nil {
		common.Log.Panicf("failed to initialize attestation engine; %s", err.Error())
	}

	return engine
}

func runAPI() {
	records := store.StoreProviderFactory(common.StoreProvider)
	outbox = requireOutbox()
	deliveryClient = messaging.NewNatsClient(records, nil)
	engine := requireEngine(records, deliveryClient, outbox)

	manager := profile.NewManager(records)
	authority := profile.NewAuthority(engine, manager)

	if common.ConsumeNATSStreamingSubscriptions {
		messaging.RequireConsumers(&wg, engine.User().Key, deliveryClient, outbox, func(ctx context.Context, msg *credential.Message) error {
			_, err := authority.Receive(ctx, msg)
			return err
		})
	}

	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(provide.CORSMiddleware())

	r.GET("/status", statusHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	store.InstallAPI(r, records)
	profile.InstallAPI(r, manager)
	protocol.InstallAPI(r, authority)

	srv = &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%s", common.ListenPort),
		Handler: r,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("failed to start attestation API; %s", err.Error())
		}
	}()

	common.Log.Debugf("listening on %s", srv.Addr)
}

func statusHandler(c *gin.Context) {
	provide.Render(nil, 204, c)
}
