// Test client is a minimal FamDesk participant for exercising the broker.
//
// In host mode it requests an access code, prints it, auto-accepts the
// first connection request, and echoes relayed control events. In client
// mode it presents a code, sends a control event once the session is
// established, and prints relayed screen data.
//
// Usage:
//
//	./test-client -server ws://localhost:3000/ws -mode host
//	./test-client -server ws://localhost:3000/ws -mode client -code 482913
//
// Flags:
//   -server: Broker WebSocket URL (default: ws://localhost:3000/ws)
//   -mode: "host" or "client" (default: host)
//   -code: Access code to present (client mode)
package main

import (
	"encoding/json"
	"flag"
	"log"

	"github.com/gorilla/websocket"

	"github.com/famdesk/famdesk/pkg/protocol"
)

// main is the entry point for the test client.
func main() {
	serverURL := flag.String("server", "ws://localhost:3000/ws", "Broker WebSocket URL")
	mode := flag.String("mode", "host", "Participant mode: host or client")
	code := flag.String("code", "", "Access code to present (client mode)")
	flag.Parse()

	log.Printf("Connecting to %s", *serverURL)
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	switch *mode {
	case "host":
		runHost(conn)
	case "client":
		if *code == "" {
			log.Fatal("Code is required in client mode. Use -code flag")
		}
		runClient(conn, *code)
	default:
		log.Fatalf("Unknown mode: %s", *mode)
	}
}

func runHost(conn *websocket.Conn) {
	send(conn, protocol.NewMessage(protocol.MsgTypeGenerateCode, nil))

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatalf("Connection closed: %v", err)
		}

		switch msg.Type {
		case protocol.MsgTypeAccessCode:
			var issued protocol.AccessCodeIssued
			decode(msg.Payload, &issued)
			log.Printf("Access code: %s (expires at %d)", issued.Code, issued.ExpiresAt)
		case protocol.MsgTypeCodeExpired:
			log.Println("Access code expired unused")
			return
		case protocol.MsgTypeConnectionRequest:
			var req protocol.ConnectionRequest
			decode(msg.Payload, &req)
			log.Printf("Connection request from %s (%s), accepting", req.ClientInfo.IP, req.ClientInfo.UserAgent)
			send(conn, protocol.NewMessage(protocol.MsgTypeAcceptConnection, &protocol.ConnectionDecision{
				ClientID: req.ClientID,
			}))
		case protocol.MsgTypeConnectionEstablished:
			var est protocol.ConnectionEstablished
			decode(msg.Payload, &est)
			log.Printf("Session %s established as %s, sending a test frame", est.SessionID, est.Role)
			send(conn, protocol.NewMessage(protocol.MsgTypeScreenData, map[string]interface{}{
				"frame": "dGVzdC1mcmFtZQ==",
			}))
		case protocol.MsgTypeControlEvent:
			log.Printf("Control event: %s", msg.Payload)
		case protocol.MsgTypeFileTransferInit, protocol.MsgTypeFileChunk, protocol.MsgTypeFileTransferComplete:
			log.Printf("File transfer message %s: %s", msg.Type, msg.Payload)
		case protocol.MsgTypeSessionEnded:
			log.Println("Session ended")
			return
		default:
			log.Printf("Message %s: %s", msg.Type, msg.Payload)
		}
	}
}

func runClient(conn *websocket.Conn, code string) {
	send(conn, protocol.NewMessage(protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{
		Code: code,
	}))

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatalf("Connection closed: %v", err)
		}

		switch msg.Type {
		case protocol.MsgTypeConnectionEstablished:
			var est protocol.ConnectionEstablished
			decode(msg.Payload, &est)
			log.Printf("Session %s established as %s, sending a control event", est.SessionID, est.Role)
			send(conn, protocol.NewMessage(protocol.MsgTypeControlEvent, map[string]interface{}{
				"kind": "mousemove",
				"x":    10,
				"y":    20,
			}))
		case protocol.MsgTypeConnectionRejected:
			log.Fatal("Host rejected the connection")
		case protocol.MsgTypeConnectionBlocked:
			log.Fatal("Origin is blocked: too many failed attempts")
		case protocol.MsgTypeConnectionError:
			var errPayload protocol.ErrorPayload
			decode(msg.Payload, &errPayload)
			log.Fatalf("Connection error %s: %s", errPayload.Code, errPayload.Message)
		case protocol.MsgTypeScreenData:
			log.Printf("Screen data: %s", msg.Payload)
		case protocol.MsgTypeSessionEnded:
			log.Println("Session ended")
			return
		default:
			log.Printf("Message %s: %s", msg.Type, msg.Payload)
		}
	}
}

func send(conn *websocket.Conn, msg *protocol.Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("Failed to send %s: %v", msg.Type, err)
	}
}

func decode(payload json.RawMessage, v interface{}) {
	if err := json.Unmarshal(payload, v); err != nil {
		log.Printf("Malformed payload: %v", err)
	}
}
