// Package main runs a demo WebSocket client for the live position stream.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Start the simulation
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/simulation/start", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("simulation start: %s", resp.Status)

	// Connect to the fleet-wide stream; pass vehicle=<code> as the first
	// argument to narrow to one vehicle.
	q := ""
	if len(os.Args) > 1 {
		q = "vehicle=" + os.Args[1]
	}
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/positions/ws", RawQuery: q}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", msg)
		}
	}()

	select {
	case <-time.After(10 * time.Second):
	case <-done:
	}
}
