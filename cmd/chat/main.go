// Command chat is a terminal client for one conversation. It wires the
// full client stack: identity resolution, conversation lookup, history
// seeding, optimistic sends and the realtime feed, rendering the timeline
// after every change.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bazaarchat/config"
	localbus "bazaarchat/internal/bus"
	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/events"
	"bazaarchat/internal/identity"
	"bazaarchat/internal/realtime"
	"bazaarchat/internal/redis"
	"bazaarchat/internal/repository"
	"bazaarchat/internal/services"
	"bazaarchat/internal/sync"
	"bazaarchat/pkg/database"
	"bazaarchat/pkg/logger"
)

func main() {
	peerID := flag.Int64("peer", 0, "user id to open a direct conversation with")
	communityID := flag.Int64("community", 0, "community id to open the group conversation of")
	flag.Parse()

	if (*peerID == 0) == (*communityID == 0) {
		log.Fatal("exactly one of -peer or -community is required")
	}

	cfg := config.LoadConfig()
	appLog := logger.New(cfg.AppMode)
	defer appLog.Logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	eventBus := events.NewRedisBus(redisClient)
	unread := redis.NewUnreadCache(redisClient, redis.DefaultUnreadCacheConfig())

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	directory := services.NewDirectoryService(convRepo, appLog)
	store := services.NewStoreService(msgRepo, convRepo, eventBus, nil, unread, appLog)

	resolver := identity.NewTokenResolver(cfg.JWTSecret, cfg.SessionToken)
	selfID, err := resolver.CurrentUserID(context.Background())
	if err != nil {
		log.Fatalf("Failed to resolve identity, set SESSION_TOKEN: %v", err)
	}

	var bridge realtime.Bridge
	switch cfg.RealtimeDriver {
	case "websocket":
		bridge = realtime.NewWSBridge(cfg.RealtimeWSURL, cfg.SessionToken, appLog)
	case "redis":
		bridge = realtime.NewRedisBridge(eventBus, appLog)
	default:
		log.Fatalf("Unknown REALTIME_DRIVER %q", cfg.RealtimeDriver)
	}

	ctx := context.Background()
	var conv chat.Conversation
	if *peerID != 0 {
		conv, err = directory.GetOrCreateDirect(ctx, selfID, *peerID)
	} else {
		conv, err = directory.GetOrCreateGroup(ctx, *communityID, []int64{selfID})
	}
	if err != nil {
		log.Fatalf("Failed to open conversation: %v", err)
	}

	signals := localbus.New()
	session, err := sync.Open(ctx, conv.ID, sync.SessionConfig{
		Store:     store,
		Directory: directory,
		Bridge:    bridge,
		Identity:  resolver,
		Signals:   signals,
		Log:       appLog,
	})
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer session.Close()

	cancel := signals.Subscribe(localbus.TopicTimelineChanged, func(string, interface{}) {
		render(selfID, session.Timeline().Messages())
	})
	defer cancel()

	fmt.Printf("conversation %d open as user %d. /retry <n>, /resync, /quit\n", conv.ID, selfID)
	render(selfID, session.Timeline().Messages())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/resync":
			if err := session.Resync(ctx); err != nil {
				fmt.Printf("resync failed: %v\n", err)
			}
		case strings.HasPrefix(line, "/retry "):
			retryByIndex(ctx, session, selfID, strings.TrimPrefix(line, "/retry "))
		default:
			if _, err := session.Send(ctx, line); err != nil {
				fmt.Printf("send failed, /retry to try again: %v\n", err)
			}
		}

		if err := session.Dropped(); err != nil {
			fmt.Println("realtime feed lost, run /resync")
		}
	}
}

// retryByIndex maps the 1-based list position the user sees back to the
// failed entry's client id.
func retryByIndex(ctx context.Context, session *sync.Session, selfID int64, raw string) {
	var idx int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &idx); err != nil {
		fmt.Println("usage: /retry <message number>")
		return
	}
	msgs := session.Timeline().Messages()
	if idx < 1 || idx > len(msgs) {
		fmt.Println("no such message")
		return
	}
	entry := msgs[idx-1]
	if !entry.Failed {
		fmt.Println("that message does not need a retry")
		return
	}
	if err := session.Retry(ctx, entry.ClientID); err != nil {
		fmt.Printf("retry failed: %v\n", err)
	}
}

func render(selfID int64, msgs []sync.Entry) {
	fmt.Println("----")
	for i, m := range msgs {
		who := fmt.Sprintf("user %d", m.SenderID)
		if m.SenderID == selfID {
			who = "me"
		}
		fmt.Printf("%3d  %s  %-8s  %s%s\n",
			i+1,
			m.CreatedAt.Local().Format(time.Kitchen),
			marker(m),
			who+": "+m.Body,
			attachmentSuffix(m))
	}
}

func marker(m sync.Entry) string {
	switch {
	case m.Failed:
		return "[failed]"
	case m.Pending():
		return "[...]"
	case m.State == chat.StateRead:
		return "[read]"
	default:
		return "[sent]"
	}
}

func attachmentSuffix(m sync.Entry) string {
	if m.AttachmentURL == "" {
		return ""
	}
	return "  <" + m.AttachmentURL + ">"
}
