package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	api "cochat-backend/cmd/api"
	authdomain "cochat-backend/internal/auth/domain"
	authRepo "cochat-backend/internal/auth/repository"
	authUsecase "cochat-backend/internal/auth/usecase"
	"cochat-backend/internal/mailsync"
	msgDelivery "cochat-backend/internal/message/delivery"
	msgdomain "cochat-backend/internal/message/domain"
	msgRepo "cochat-backend/internal/message/repository"
	msgUsecase "cochat-backend/internal/message/usecase"
	messengerDelivery "cochat-backend/internal/messenger/delivery"
	messengerdomain "cochat-backend/internal/messenger/domain"
	messengerRepo "cochat-backend/internal/messenger/repository"
	"cochat-backend/internal/messenger/scheduler"
	messengerUsecase "cochat-backend/internal/messenger/usecase"
	"cochat-backend/internal/notification"
	gmailprovider "cochat-backend/internal/providers/gmail"
	imapprovider "cochat-backend/internal/providers/imap"
	igprovider "cochat-backend/internal/providers/instagram"
	"cochat-backend/pkg/ai"
	"cochat-backend/pkg/chroma"
	"cochat-backend/pkg/config"
	"cochat-backend/pkg/database"
	"cochat-backend/pkg/fcm"
	"cochat-backend/pkg/gmail"
	"cochat-backend/pkg/imap"
	"cochat-backend/pkg/instagram"
	"cochat-backend/pkg/natsjs"
	"cochat-backend/pkg/sealer"
	"cochat-backend/pkg/sse"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{},
		&messengerdomain.LinkedAccount{}, &msgdomain.Message{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	accountRepo := messengerRepo.NewLinkedAccountRepository(db)
	messageRepo := msgRepo.NewMessageRepository(db)

	sseManager := sse.NewManager()
	go sseManager.Run()

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	instagramService := instagram.NewService(cfg.InstagramClientID, cfg.InstagramClientSecret, cfg.InstagramRedirectURI)
	imapService := imap.NewService()
	passwordSealer := sealer.New(cfg.EncryptionKey)

	gmailClient := gmailprovider.NewClient(gmailService)
	imapClient := imapprovider.NewClient(imapService, passwordSealer)
	instagramClient := igprovider.NewClient(instagramService)

	registry := mailsync.NewRegistry()
	registry.Register(string(messengerdomain.ProviderGmail), gmailClient)
	registry.Register(string(messengerdomain.ProviderIMAP), imapClient)
	registry.Register(string(messengerdomain.ProviderInstagram), instagramClient)

	// Notification sinks
	dispatcherOpts := []notification.DispatcherOption{notification.WithEventStream(sseManager)}
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		} else {
			dispatcherOpts = append(dispatcherOpts, notification.WithPush(fcmClient, fcmTokenRepo))
		}
	}
	if cfg.NatsURL != "" {
		publisher, err := natsjs.NewPublisher(cfg.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS (event stream disabled): %v", err)
		} else if err := publisher.EnsureStream(ctx); err != nil {
			log.Printf("[WARN] Failed to ensure NATS stream (event stream disabled): %v", err)
			publisher.Close()
		} else {
			defer publisher.Close()
			dispatcherOpts = append(dispatcherOpts, notification.WithPublisher(publisher))
		}
	}

	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	messageUsecaseInstance := msgUsecase.NewMessageUsecase(messageRepo)

	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma client, semantic search falls back to keywords: %v", err)
		} else {
			dispatcherOpts = append(dispatcherOpts, notification.WithIndexer(chromaClient))
			messageUsecaseInstance.SetVectorIndex(chromaClient)
			authUsecaseInstance.SetPreferenceEmbedder(chromaClient)
		}
	}

	syncOpts := []mailsync.Option{
		mailsync.WithNotifier(notification.NewDispatcher(dispatcherOpts...)),
		mailsync.WithTimeouts(cfg.ProviderTimeout, cfg.EnrichmentTimeout),
	}
	analyzer, err := ai.NewAnalyzer(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		RemoteURL:     cfg.LLMServerURL,
		GeminiAPIKey:  cfg.GeminiApiKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Printf("[WARN] No analysis backend, messages are stored unclassified: %v", err)
	} else {
		syncOpts = append(syncOpts, mailsync.WithAnalyzer(analyzer))
	}
	cursor := mailsync.NewCursor(mailsync.NewGormStore(db), registry, syncOpts...)

	messengerUsecaseInstance := messengerUsecase.NewMessengerUsecase(messengerUsecase.Dependencies{
		Accounts:  accountRepo,
		Syncer:    cursor,
		Gmail:     gmailService,
		Instagram: instagramService,
		IMAP:      imapService,
		IMAPHead:  imapClient,
		Sealer:    passwordSealer,
	}, messengerUsecase.Config{
		StateSecret: cfg.JWTSecret,
		PubSubTopic: cfg.GooglePubSubTopic,
		Timeout:     cfg.ProviderTimeout,
	})

	// Gmail notifications arrive by push on /gmail/push, or by pull when a
	// subscription is configured.
	if cfg.GoogleProjectID != "" && cfg.PubSubSubscription != "" {
		subscriber, err := notification.NewSubscriber(ctx, cfg.GoogleProjectID, cfg.GooglePubSubTopic, cfg.PubSubSubscription, cfg.GoogleCredentials, cursor)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize Pub/Sub subscriber: %v", err)
		} else {
			defer subscriber.Close()
			go func() {
				if err := subscriber.Start(ctx); err != nil {
					log.Printf("[PubSub] Subscriber stopped: %v", err)
				}
			}()
		}
	}

	renewer := scheduler.NewRenewer(accountRepo, cursor, gmailService, instagramClient, cfg.GooglePubSubTopic, cfg.WatchRenewEvery)
	renewer.Start()
	defer renewer.Stop()

	poller := scheduler.NewIMAPPoller(accountRepo, imapClient, cursor, cfg.IMAPPollInterval)
	poller.Start()
	defer poller.Stop()

	handler := api.NewHandler(
		authUsecaseInstance,
		msgDelivery.NewMessageHandler(messageUsecaseInstance),
		messengerDelivery.NewMessengerHandler(messengerUsecaseInstance),
		notification.NewWebhookHandler(cursor, cfg.InstagramVerifyToken, cfg.InstagramClientSecret),
		sseManager,
	)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := handler.Start(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	sseManager.Stop()
}
