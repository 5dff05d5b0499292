package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nufaill/fluffyCare-sub004/internal/client"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

var watchedEvents = []string{
	models.EventNewMessage,
	models.EventMessageDelivered,
	models.EventMessageRead,
	models.EventUserTyping,
	models.EventUserStoppedTyping,
	models.EventChatUpdated,
	models.EventReactionAdded,
	models.EventReactionRemoved,
	models.EventMessageDeleted,
	models.EventJoinedChat,
	models.EventLeftChat,
	models.EventError,
	client.EventReconnectFailed,
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("CHAT_SERVER", "http://localhost:8083"), "chat service base URL")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "bearer token")
	partyID := flag.String("id", os.Getenv("CHAT_PARTY_ID"), "your user or shop id")
	role := flag.String("role", envOr("CHAT_ROLE", "User"), "User or Shop")
	chatID := flag.String("chat", "", "chat id to open")
	send := flag.String("send", "", "send this text after joining")
	flag.Parse()

	me := models.Identity{ID: *partyID, Role: models.Role(*role)}
	if *token == "" || me.ID == "" || !me.Role.Valid() {
		fmt.Fprintln(os.Stderr, "usage: chatwatch -token T -id ID -role User|Shop [-chat CHAT] [-send TEXT]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := client.NewGateway(client.DefaultOptions(wsURL(*server), *token))
	rest := client.NewRESTClient(strings.TrimRight(*server, "/")+"/api/chats", *token, client.WithConnectionID(gw.ConnectionID))
	ctrl := client.NewController(me, rest, gw)
	defer ctrl.Close()

	gw.OnState(func(s client.State) { logger.Info("gateway %s", s) })
	done := make(chan struct{})
	for _, event := range watchedEvents {
		event := event
		gw.On(event, func(data json.RawMessage) {
			fmt.Printf("%s %-20s %s\n", time.Now().Format(time.TimeOnly), event, data)
			if event == client.EventReconnectFailed {
				close(done)
			}
		})
	}

	if err := gw.Connect(ctx); err != nil {
		logger.Error("connect: %v", err)
		os.Exit(1)
	}
	defer gw.Disconnect()

	chats, err := ctrl.LoadChats(ctx, models.DefaultPageLimit)
	if err != nil {
		logger.Error("load chats: %v", err)
		os.Exit(1)
	}
	for _, c := range chats {
		marker := ""
		if !c.Healthy() {
			marker = " [" + c.Issue + "]"
		}
		fmt.Printf("%s  %-24s unread=%d  %q%s\n", c.ID, c.CounterpartName(me.Role), c.UnreadCount, c.LastMessage, marker)
	}

	if *chatID != "" {
		if err := ctrl.OpenChat(ctx, *chatID); err != nil {
			logger.Error("open chat %s: %v", *chatID, err)
			os.Exit(1)
		}
		for _, m := range ctrl.Messages() {
			fmt.Printf("%s %-5s %s\n", m.CreatedAt.Format(time.DateTime), m.SenderRole, m.Preview())
		}
		if *send != "" {
			if msg, err := ctrl.Send(ctx, models.MessageText, *send, ""); err != nil {
				logger.Error("send failed, local id %s: %v", msg.LocalID, err)
			} else {
				logger.Info("sent message %s", msg.ID)
			}
		}
	}

	select {
	case <-ctx.Done():
	case <-done:
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func wsURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		server = "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		server = "ws://" + strings.TrimPrefix(server, "http://")
	}
	return server + "/ws"
}
