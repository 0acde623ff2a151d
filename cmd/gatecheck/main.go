// gatecheck probes the messaging gateway: one status call over HTTP, then a
// short listen on the websocket feed. Useful when wiring up a new deployment.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vinzz/vinzz-rpg-bot/internal/wagate"
)

func main() {
	baseURL := os.Getenv("GATE_BASE_URL")
	wsURL := os.Getenv("GATE_WS_URL")
	token := os.Getenv("GATE_TOKEN")

	if baseURL == "" {
		log.Fatal("GATE_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if token != "" {
			m["Authorization"] = "Bearer " + token
		}
		return m
	}

	client := wagate.NewClient(baseURL,
		wagate.WithHeaderProvider(headers),
		wagate.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		log.Printf("/status error: %v", err)
	} else {
		log.Printf("/status ok: connected=%v phone=%s uptime=%dms", st.Connected, st.Phone, st.Uptime)
	}

	if wsURL == "" {
		log.Println("GATE_WS_URL not set; skipping WS check")
		return
	}

	ws := wagate.NewWebSocket(wsURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state wagate.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *wagate.Message) {
		fmt.Printf("WS msg chat=%s from=%s text=%q\n", msg.ChatID, msg.SenderID, msg.Text)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C
	_ = ws.Close(context.Background())
}
