package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/api"
	"github.com/Tk21111/meeting_board/auth"
	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/db"
	"github.com/Tk21111/meeting_board/discovery"
	"github.com/Tk21111/meeting_board/export"
	"github.com/Tk21111/meeting_board/internal/logx"
	"github.com/Tk21111/meeting_board/ws"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		logx.L.Fatal("config", zap.Error(err))
	}

	log, err := logx.Init(settings.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	journal, err := db.NewWriter(settings.DBPath, log)
	if err != nil {
		log.Fatal("open attendance journal", zap.Error(err))
	}
	defer journal.Close()

	deps := api.Deps{
		Hub:         ws.NewHub(journal, log),
		Issuer:      auth.NewIssuer(settings.JWTSecret, settings.TokenTTL),
		Attendance:  journal,
		PublicWSURL: settings.PublicWSURL,
		CORSOrigin:  settings.CORSOrigin,
	}

	if settings.GoogleClientID != "" {
		deps.Verifier = auth.GoogleVerifier{ClientID: settings.GoogleClientID}
	}

	if settings.StorageEnabled() {
		uploader, err := export.NewUploader(context.Background(), export.Storage{
			Endpoint:  settings.R2Endpoint,
			Bucket:    settings.R2Bucket,
			AccessKey: settings.R2AccessKey,
			SecretKey: settings.R2SecretKey,
		})
		if err != nil {
			log.Fatal("snapshot storage", zap.Error(err))
		}
		deps.Storage = uploader
	}

	if settings.MDNSEnabled {
		port, err := strconv.Atoi(settings.Port)
		if err != nil {
			log.Fatal("mdns needs a numeric PORT", zap.String("port", settings.Port))
		}
		adv, err := discovery.Advertise("", port, log)
		if err != nil {
			log.Warn("mdns advertise", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("relay running",
			zap.String("addr", srv.Addr),
			zap.String("env", settings.Env),
			zap.Bool("google_auth", deps.Verifier != nil),
			zap.Bool("storage", deps.Storage != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("relay stopped")
}
