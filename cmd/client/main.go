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

	"github.com/omochice/toy-room-relay/internal/client"
	"github.com/omochice/toy-room-relay/pkg/protocol"
)

func main() {
	serverAddr := flag.String("server", "ws://localhost:3000", "Relay server URL (e.g., ws://localhost:3000)")
	userID := flag.String("user", "", "User ID to join as (server assigns one when empty)")
	roomID := flag.String("room", "", "Room to join")
	flag.Parse()

	if *roomID == "" {
		log.Fatal("Room is required. Use -room flag")
	}

	c := client.New(*serverAddr, *userID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := c.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()

	if err := c.Join(*roomID); err != nil {
		log.Fatalf("Failed to join room: %v", err)
	}

	go func() {
		for msg := range c.Messages() {
			printMessage(msg)
		}
		log.Println("Connection closed by server")
	}()

	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if err := c.SendMessage(text, ""); err != nil {
			log.Printf("Failed to send message: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
	log.Println("Disconnected from server")
}

func printMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeRoomJoined:
		fmt.Printf("*** joined %s as %s (%s) ***\n", msg.RoomID, msg.UserID, strings.Join(msg.Participants, ", "))
		for _, h := range msg.History {
			printMessage(h)
		}
	case protocol.MessageTypeUserJoined:
		fmt.Printf("*** %s joined %s ***\n", msg.UserID, msg.RoomID)
	case protocol.MessageTypeUserLeft:
		fmt.Printf("*** %s left %s ***\n", msg.UserID, msg.RoomID)
	case protocol.MessageTypeNewMessage:
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format(time.Kitchen), msg.UserID, msg.Content)
	case protocol.MessageTypeVoiceMessage:
		fmt.Printf("[%s] %s (voice): %s\n", msg.Timestamp.Local().Format(time.Kitchen), msg.UserID, msg.Transcript)
	case protocol.MessageTypeError:
		fmt.Printf("!!! %s\n", msg.Content)
	}
}
