// Ember CLI - Command line client for the Ember chat server
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/emberchat/ember/clients/go/ember"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("EMBER_URL")
	client := ember.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "register":
		requireArgs(3, "Usage: ember register <username> <password>")
		resp, err := client.Register(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Registered as %s (%s)\n", resp.Username, resp.ID)

	case "login":
		requireArgs(3, "Usage: ember login <username> <password>")
		resp, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Logged in as %s\n", resp.Username)

	case "find":
		requireArgs(2, "Usage: ember find <username>")
		resp, err := client.FindUser(os.Args[2])
		exitOnError(err)
		printJSON(resp)

	case "start":
		requireArgs(2, "Usage: ember start <user_id>")
		resp, err := client.CreateChat(os.Args[2])
		exitOnError(err)
		if len(resp.Incomplete) > 0 {
			fmt.Printf("Chat %s created but incomplete; run: ember repair %s\n", resp.ID, resp.ID)
		} else {
			fmt.Printf("Chat created: %s\n", resp.ID)
		}

	case "repair":
		requireArgs(2, "Usage: ember repair <chat_id>")
		exitOnError(client.RepairChat(os.Args[2]))
		fmt.Println("Repaired")

	case "chats":
		resp, err := client.Chats()
		exitOnError(err)
		for _, chat := range resp.Chats {
			marker := " "
			if !chat.Seen {
				marker = "*"
			}
			name := chat.PeerID
			if chat.Peer != nil {
				name = chat.Peer.Username
			}
			fmt.Printf("%s %s  %s: %s\n", marker, chat.ConversationID, name, chat.LastMessage)
		}

	case "read":
		requireArgs(2, "Usage: ember read <chat_id>")
		resp, err := client.Messages(os.Args[2])
		exitOnError(err)
		for _, msg := range resp.Messages {
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			text := msg.Text
			if msg.AttachmentURL != "" {
				text += " [" + msg.AttachmentURL + "]"
			}
			fmt.Printf("[%s] %s: %s\n", ts, msg.From[:8], text)
		}
		exitOnError(client.MarkSeen(os.Args[2]))

	case "send":
		requireArgs(3, "Usage: ember send <chat_id> <text>")
		resp, err := client.Send(os.Args[2], os.Args[3], "")
		exitOnError(err)
		fmt.Printf("Sent: %s\n", resp.ID)

	case "block":
		requireArgs(2, "Usage: ember block <user_id>")
		exitOnError(client.Block(os.Args[2]))
		fmt.Println("Blocked")

	case "unblock":
		requireArgs(2, "Usage: ember unblock <user_id>")
		exitOnError(client.Unblock(os.Args[2]))
		fmt.Println("Unblocked")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Ember CLI - two-party chat client

Usage: ember <command> [options]

Commands:
  register <username> <password>   Create an account
  login <username> <password>      Sign in
  find <username>                  Look up a user
  start <user_id>                  Start a chat with a user
  repair <chat_id>                 Finish an incomplete chat creation
  chats                            List chats (* = unread)
  read <chat_id>                   Read a chat and mark it seen
  send <chat_id> <text>            Send a message
  block <user_id>                  Block a user
  unblock <user_id>                Unblock a user
  health                           Check server health

Environment:
  EMBER_URL      Server URL (default: http://localhost:8080)
  EMBER_CONFIG   Config directory (default: ~/.ember)`)
}

func requireArgs(n int, usageLine string) {
	if len(os.Args) < n+1 {
		fmt.Fprintln(os.Stderr, usageLine)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
